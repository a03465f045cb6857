package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/financekit/internal/client/api"
	"github.com/dmitrijs2005/financekit/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) readCredentials() (string, string, error) {
	userName, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return "", "", err
	}
	if userName == "" {
		return "", "", errors.New("username is required")
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return "", "", err
	}
	defer common.WipeByteArray(password)
	return userName, string(password), nil
}

// Login prompts for credentials, signs in and provisions the device. A
// failed provisioning does not undo the login; 'setup' retries it.
func (a *App) Login(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}

	if err := a.backend.Login(ctx, userName, password); err != nil {
		if errors.Is(err, api.ErrUnavailable) {
			a.setMode(ctx, ModeOffline)
		}
		return fmt.Errorf("login failed: %w", err)
	}
	a.setMode(ctx, ModeOnline)
	printlnFn("Login successful")

	if err := a.backend.Setup(ctx); err != nil {
		printlnFn("Device setup incomplete:", err)
	}
	return nil
}

// SignUp creates an account. Email is optional.
func (a *App) SignUp(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email (optional)", os.Stdout)
	if err != nil {
		return err
	}

	if err := a.backend.SignUp(ctx, userName, password, email); err != nil {
		return fmt.Errorf("sign up failed: %w", err)
	}
	printlnFn("Account created")

	if err := a.backend.Setup(ctx); err != nil {
		printlnFn("Device setup incomplete:", err)
	}
	return nil
}

// Logout signs the user out and removes their data from this device.
func (a *App) Logout(ctx context.Context) error {
	a.backend.SignOut(ctx)
	printlnFn("Logged out")
	return nil
}

// Setup provisions the device: keypair, registration and server key.
func (a *App) Setup(ctx context.Context) error {
	if err := a.backend.Setup(ctx); err != nil {
		return err
	}
	printlnFn("Device ready")
	return nil
}
