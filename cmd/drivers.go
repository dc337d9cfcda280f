package cmd

// Backends that register themselves on import.
import (
	_ "github.com/kozaktomas/face-attendance/internal/ledger/sqlstore"
	_ "github.com/kozaktomas/face-attendance/internal/recognition/lbph"
)
