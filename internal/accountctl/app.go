// Package accountctl implements the operator commands of the accountctl
// tool: creating users and revoking all of a user's sessions.
package accountctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authgateway/internal/common"
	"github.com/dmitrijs2005/authgateway/internal/server/models"
	"github.com/dmitrijs2005/authgateway/internal/server/services"
)

const usage = `usage:
  accountctl create-user [config flags]
  accountctl revoke <user-id> [config flags]`

var ErrUsage = errors.New(usage)

// Accounts is the subset of the account service the tool needs.
type Accounts interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	LogoutAll(ctx context.Context, userID string) (int, error)
}

type App struct {
	accounts Accounts
	in       *bufio.Reader
	out      io.Writer
}

func NewApp(accounts Accounts, in io.Reader, out io.Writer) *App {
	return &App{accounts: accounts, in: bufio.NewReader(in), out: out}
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "create-user":
		return a.CreateUser(ctx)
	case "revoke":
		if len(args) < 2 {
			return ErrUsage
		}
		return a.Revoke(ctx, args[1])
	case "help", "-h", "--help":
		fmt.Fprintln(a.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%w", args[0], ErrUsage)
	}
}

// CommandArgs splits os.Args[1:] into the command part and the remaining
// configuration flags.
func CommandArgs(args []string) (cmd, rest []string) {
	if len(args) == 0 {
		return nil, nil
	}
	n := 1
	if args[0] == "revoke" && len(args) > 1 {
		n = 2
	}
	return args[:n], args[n:]
}

func (a *App) CreateUser(ctx context.Context) error {
	email, err := GetSimpleText(a.in, "E-mail", a.out)
	if err != nil {
		return err
	}
	first, err := GetSimpleText(a.in, "First name", a.out)
	if err != nil {
		return err
	}
	last, err := GetSimpleText(a.in, "Last name", a.out)
	if err != nil {
		return err
	}
	mobile, err := GetSimpleText(a.in, "Mobile (optional)", a.out)
	if err != nil {
		return err
	}

	pw, err := GetPassword(a.out, "Password")
	if err != nil {
		return err
	}
	confirm, err := GetPassword(a.out, "Repeat password")
	if err != nil {
		return err
	}
	defer wipe(pw)
	defer wipe(confirm)

	if string(pw) != string(confirm) {
		return errors.New("passwords do not match")
	}

	in := services.RegisterInput{Email: email, Password: string(pw), FirstName: first, LastName: last}
	if mobile != "" {
		in.Mobile = &mobile
	}

	u, err := a.accounts.Register(ctx, in)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return fmt.Errorf("user %s already exists", email)
		}
		if errors.Is(err, common.ErrValidation) {
			return fmt.Errorf("invalid user: %w", err)
		}
		return err
	}

	fmt.Fprintf(a.out, "created user %s (%s)\n", u.ID, u.Email)
	return nil
}

// Revoke bumps the user's token version so every refresh token issued so
// far stops working.
func (a *App) Revoke(ctx context.Context, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return fmt.Errorf("invalid user id %q", userID)
	}

	v, err := a.accounts.LogoutAll(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("user %s not found", userID)
		}
		return err
	}

	fmt.Fprintf(a.out, "revoked sessions of %s, token version is now %d\n", userID, v)
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
