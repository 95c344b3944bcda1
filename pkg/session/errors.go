// pkg/session/errors.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package session

import (
	"errors"
)

var (
	ErrInvalidRoute         = errors.New("Route failed validation")
	ErrNoDestination        = errors.New("Route has no destination waypoint")
	ErrNotInEmergency       = errors.New("No emergency is active")
	ErrSessionStopped       = errors.New("Session has been stopped")
	ErrSessionAlreadyActive = errors.New("Navigation is already active")
)
