package cli

import (
	"context"
	"errors"

	"github.com/Tarcisio20/meu-gerente/internal/client/client"
	"github.com/Tarcisio20/meu-gerente/internal/client/services"
	"github.com/Tarcisio20/meu-gerente/internal/common"
)

// getSimpleText and getPassword are swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// report prints the user-facing form of err and hands err back.
func (a *App) report(err error) error {
	if errors.Is(err, client.ErrUnavailable) {
		a.setMode(ModeOffline)
	}
	printlnFn(services.UserMessage(err))
	return err
}

// Register prompts for name, email, optional username and password and
// creates the account. The user still has to log in afterwards.
func (a *App) Register(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter name", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	slug, err := getSimpleText(a.reader, "Enter username (empty to derive from email)", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.authService.Register(ctx, name, email, slug, password)
	if err != nil {
		return a.report(err)
	}

	printlnFn("Account created for", u.Slug+". You can log in now.")
	return nil
}

// Login accepts an email or a username.
func (a *App) Login(ctx context.Context) error {
	login, err := getSimpleText(a.reader, "Enter email or username", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.authService.Login(ctx, login, password)
	if err != nil {
		return a.report(err)
	}

	a.setMode(ModeOnline)
	printlnFn("Logged in as", u.Slug)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return a.report(err)
	}
	printlnFn("Logged out")
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	u, err := a.authService.WhoAmI(ctx)
	if err != nil {
		return a.report(err)
	}
	printlnFn(u.Name, "<"+u.Email+">", "@"+u.Slug)
	return nil
}

// Ping hits the private ping when logged in so it also checks the session.
func (a *App) Ping(ctx context.Context) error {
	if a.isLoggedIn() {
		slug, err := a.authService.PrivatePing(ctx)
		if err != nil {
			return a.report(err)
		}
		printlnFn("pong", slug)
		return nil
	}

	if err := a.authService.Ping(ctx); err != nil {
		return a.report(err)
	}
	a.setMode(ModeOnline)
	printlnFn("pong")
	return nil
}

func (a *App) Forgot(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	msg, err := a.authService.ForgotPassword(ctx, email)
	if err != nil {
		return a.report(err)
	}
	printlnFn(msg)
	return nil
}
