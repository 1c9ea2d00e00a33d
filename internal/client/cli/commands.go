package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/dmitrijs2005/storefront/internal/client/session"
	"github.com/dmitrijs2005/storefront/internal/common"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// maxBodyPrint caps how much of a response body get prints.
const maxBodyPrint = 4 << 10

func (a *App) Register(ctx context.Context) error {
	var in session.RegisterRequest
	var err error

	if in.FullName, err = GetSimpleText(a.reader, "Full name", a.out); err != nil {
		return err
	}
	if in.Email, err = GetSimpleText(a.reader, "Email", a.out); err != nil {
		return err
	}
	if in.PhoneNumber, err = GetSimpleText(a.reader, "Phone number (optional)", a.out); err != nil {
		return err
	}
	pw, err := GetPassword(a.out, "Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)
	in.Password = string(pw)

	confirm, err := getConfirmation(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)
	in.ConfirmPassword = string(confirm)

	if err := a.session.Register(ctx, in); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Welcome, %s\n", in.FullName)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	pw, err := GetPassword(a.out, "Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if err := a.session.Login(ctx, email, string(pw)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed in")
	return nil
}

func (a *App) Me(ctx context.Context) error {
	p, err := a.session.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s>\nrole: %s\nid: %s\n", p.FullName, p.Email, p.Role, p.ID)
	if p.PhoneNumber != "" {
		fmt.Fprintf(a.out, "phone: %s\n", p.PhoneNumber)
	}
	return nil
}

// Get performs an authenticated GET and prints the status and body.
func (a *App) Get(ctx context.Context, path string) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	resp, err := a.session.Get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyPrint))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d %s\n%s\n", resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)))
	return nil
}

// Ping asks the server's gRPC health service whether it is serving.
func (a *App) Ping(ctx context.Context) error {
	resp, err := a.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.GetStatus().String())
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *App) LogoutAll(ctx context.Context) error {
	n, err := a.session.LogoutAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed out everywhere (%d sessions)\n", n)
	return nil
}

func (a *App) ChangePassword(ctx context.Context) error {
	current, err := GetPassword(a.out, "Current password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)
	next, err := GetPassword(a.out, "New password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)
	confirm, err := getConfirmation(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if err := a.session.ChangePassword(ctx, string(current), string(next), string(confirm)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed. Sign in with the new password.")
	return nil
}

func (a *App) Status(context.Context) error {
	creds, ok := a.session.Credentials()
	if !ok {
		fmt.Fprintln(a.out, a.status())
		return nil
	}
	fmt.Fprintf(a.out, "%s (access token expires %s)\n", a.status(), creds.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

func getConfirmation(w io.Writer) ([]byte, error) {
	return GetPassword(w, "Repeat password")
}

// describe turns a command error into the line shown to the user.
func describe(err error) string {
	var v *common.ValidationError
	switch {
	case errors.Is(err, session.ErrReauthenticate):
		return common.ReauthenticateMessage
	case errors.As(err, &v):
		fields := make([]string, 0, len(v.Fields))
		for f := range v.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		var b strings.Builder
		b.WriteString("Please fix:")
		for _, f := range fields {
			fmt.Fprintf(&b, "\n  %s: %s", f, v.Fields[f])
		}
		return b.String()
	case errors.Is(err, common.ErrorUnauthorized):
		return "Invalid email or password"
	case errors.Is(err, common.ErrAlreadyExists):
		return "An account with this email already exists"
	case errors.Is(err, common.ErrRateLimited):
		return "Too many attempts, try again later"
	case errors.Is(err, common.ErrForbidden):
		return "Not allowed"
	default:
		return "Error: " + err.Error()
	}
}
