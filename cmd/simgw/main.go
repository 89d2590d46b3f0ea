package main

import (
	"fmt"

	app "sim-gateway-go"
	"sim-gateway-go/internal/pkg/startup"
)

const AppName = "simgw"

func main() {
	fmt.Printf("Starting application: %s version %s\n", AppName, app.Version)
	startup.BootStrap(AppName, app.Version)
}
