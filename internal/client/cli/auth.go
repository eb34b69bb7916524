package cli

import (
	"context"
	"errors"

	"github.com/simonexmachina/the-work/internal/client/client"
	"github.com/simonexmachina/the-work/internal/common"
)

// Test seams over the interactive input helpers.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getMultiline  = GetMultiline
	getFields     = GetFields
)

func (a *App) credentials() (string, []byte, error) {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return userName, password, nil
}

// Register creates an account on the server. It does not sign in.
func (a *App) Register(ctx context.Context) error {
	userName, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Register(ctx, userName, password); err != nil {
		switch {
		case errors.Is(err, client.ErrUnavailable):
			a.println("Server unavailable, registration needs a connection")
		case errors.Is(err, common.ErrorAlreadyExists):
			a.println("Username already taken")
		default:
			a.println("Registration failed:", err)
		}
		return err
	}

	a.println("Success! You can log in now.")
	return nil
}

// Login signs in online, falling back to the cached credentials when the
// server is unreachable. Sync starts through the identity listener.
func (a *App) Login(ctx context.Context) error {
	if a.auth.IsAuthenticated() {
		a.println("Already logged in as", a.auth.Username())
		return nil
	}

	userName, password, err := a.credentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	offline, err := a.auth.Login(ctx, userName, password)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrLocalDataNotAvailable):
			a.println("Server unavailable and no offline data for this device")
		case errors.Is(err, client.ErrUnauthorized):
			a.println("Wrong username or password")
		default:
			a.println("Login unsuccessful:", err)
		}
		return err
	}

	if offline {
		a.setMode(ctx, ModeOffline)
		a.println("Logged in offline, changes will sync once the server is back")
		return nil
	}
	a.setMode(ctx, ModeOnline)
	a.println("Login successful")
	return nil
}

// Logout ends the session. Unsynced local changes stay on this device and
// upload after the next login.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		a.println("Logout:", err)
		return err
	}
	a.println("Logged out")
	return nil
}
