package version

// Version is overridden at link time with -ldflags "-X".
var Version string = "0.0.0"
