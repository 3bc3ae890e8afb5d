package types

// Version is the CLI version, overridden at build time with -ldflags
var Version = "dev"
