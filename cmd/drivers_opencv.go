//go:build opencv

package cmd

import (
	_ "github.com/kozaktomas/face-attendance/internal/opencv"
)
