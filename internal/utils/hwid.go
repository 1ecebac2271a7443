package utils

import (
	"github.com/denisbrodbeck/machineid"
)

const hwidAppID = "claude-sync"

// HWID is an app-scoped, hashed machine identifier. Empty when the platform refuses to expose one.
var HWID = loadHWID()

func loadHWID() string {
	id, err := machineid.ProtectedID(hwidAppID)
	if err != nil {
		return ""
	}
	return id[:16]
}
