package api

import (
	"fmt"

	"github.com/BearBiscuit05/verl/mcore"
	"github.com/BearBiscuit05/verl/parallel"
)

// StatusError is an error with an HTTP status code and message.
// It is parsed on the client side and not returned from the API.
type StatusError struct {
	StatusCode   int    // e.g. 200
	Status       string // e.g. "200 OK"
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the verl server logs for details"
	}
}

// ConvertRequest is the request passed to [Client.Convert].
type ConvertRequest struct {
	// Config is the parsed contents of a model's config.json.
	Config map[string]any `json:"config"`

	// DType is the training precision, e.g. "bf16". The server default is
	// used when empty.
	DType string `json:"dtype,omitempty"`

	// Topology overrides the parallel layout reported by the server's
	// environment.
	Topology *parallel.Topology `json:"topology,omitempty"`
}

// ConvertResponse is the response returned by [Client.Convert].
type ConvertResponse struct {
	Architecture string                   `json:"architecture"`
	Family       string                   `json:"family"`
	Parameters   uint64                   `json:"parameters"`
	Config       *mcore.TransformerConfig `json:"config"`
}

type ArchitectureResponse struct {
	Name      string `json:"name"`
	Family    string `json:"family"`
	Supported bool   `json:"supported"`
}

// ListArchitecturesResponse is the response from [Client.Architectures].
type ListArchitecturesResponse struct {
	Architectures []ArchitectureResponse `json:"architectures"`
}
