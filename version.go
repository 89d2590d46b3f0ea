package simgateway

// Version is overridden at build time with -ldflags "-X sim-gateway-go.Version=...".
var Version = "0.1"
