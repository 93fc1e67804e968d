// ABOUTME: Build-time identity constants advertised in client/hello's device_info
package version

// Version, Product, and Manufacturer are advertised to the server in
// client/hello's device_info payload and used as defaults when the host
// application does not override them.
const (
	Version      = "0.1.0"
	Product      = "Sendspin Client"
	Manufacturer = "Sendspin"
)
