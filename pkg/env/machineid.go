// Package env provides information about the host a buoy runs on.
package env

import (
	"github.com/denisbrodbeck/machineid"
)

// AppID scopes the derived machine ID to this application.
const AppID = "sfy-buoy"

// idLength is the number of hex digits kept from the protected ID.
const idLength = 16

// MachineID retrieves an ID identifying the machine. The raw machine ID
// is never exposed; a hash keyed with AppID is returned instead.
func MachineID() (string, error) {
	id, err := machineid.ProtectedID(AppID)
	if err != nil {
		return "", err
	}
	if len(id) > idLength {
		id = id[:idLength]
	}
	return id, nil
}
