package sensorscan

import (
	"context"
	"log/slog"
	"strings"
)

// RuntimePermissionLevel is the first Android API level that asks for
// permissions at runtime.
const RuntimePermissionLevel = 23

type Permission string

const (
	PermissionFineLocation Permission = "android.permission.ACCESS_FINE_LOCATION"
)

type PermissionResult string

const (
	PermissionGranted       PermissionResult = "granted"
	PermissionDenied        PermissionResult = "denied"
	PermissionNeverAskAgain PermissionResult = "never_ask_again"
)

// Rationale is the copy shown to the user when a permission is requested.
type Rationale struct {
	Title          string
	Message        string
	ButtonPositive string
}

var DefaultRationale = Rationale{
	Title:          "Permission Required",
	Message:        "This app needs location permission to scan for Bluetooth devices.",
	ButtonPositive: "OK",
}

// Platform identifies the operating system the session runs on and, for
// Android, its API level.
type Platform struct {
	OS      string
	Version int
}

func (p Platform) needsRuntimePermission() bool {
	return strings.EqualFold(p.OS, "android") && p.Version >= RuntimePermissionLevel
}

type PermissionRequester interface {
	Request(ctx context.Context, perm Permission, rationale Rationale) (PermissionResult, error)
}

// StaticRequester answers every request with the same result.
type StaticRequester PermissionResult

func (r StaticRequester) Request(context.Context, Permission, Rationale) (PermissionResult, error) {
	return PermissionResult(r), nil
}

type PermissionGate struct {
	platform  Platform
	requester PermissionRequester
	rationale Rationale
	log       *slog.Logger
}

func NewPermissionGate(
	platform Platform,
	requester PermissionRequester,
	log *slog.Logger,
) *PermissionGate {
	if log == nil {
		log = discardLogger()
	}
	return &PermissionGate{
		platform:  platform,
		requester: requester,
		rationale: DefaultRationale,
		log:       log,
	}
}

// Request asks for the location permission needed to scan. It returns true
// on explicit grant, and on every platform that does not enforce runtime
// permissions. Errors are logged, never returned.
func (g *PermissionGate) Request(ctx context.Context) bool {
	if !g.platform.needsRuntimePermission() {
		return true
	}

	if g.requester == nil {
		g.log.Warn("no permission requester", "permission", PermissionFineLocation)
		return false
	}

	res, err := g.requester.Request(ctx, PermissionFineLocation, g.rationale)
	if err != nil {
		g.log.Warn("permission request failed", "permission", PermissionFineLocation, "error", err)
		return false
	}

	return res == PermissionGranted
}
