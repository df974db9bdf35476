package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/uniteams/uniteams/core/auth"
	"github.com/uniteams/uniteams/core/profile"
	"github.com/uniteams/uniteams/storage/inmem"
)

// stubAuthService records calls; provisioning only needs a slice of the
// auth.Service surface.
type stubAuthService struct {
	accounts     map[string]string // email -> password
	lastIdent    *auth.Identity
	lastSignedIn string
}

var _ auth.Service = (*stubAuthService)(nil)

func newStubAuthService() *stubAuthService {
	return &stubAuthService{accounts: make(map[string]string)}
}

func (svc *stubAuthService) GetSession(ctx context.Context) (*auth.Session, error) { return nil, nil }

func (svc *stubAuthService) SignUp(ctx context.Context, na auth.NewAccount) (*auth.Identity, *auth.Session, error) {
	if _, ok := svc.accounts[na.Email]; ok {
		return nil, nil, auth.ErrEmailExists
	}
	svc.accounts[na.Email] = na.Password
	ident := &auth.Identity{ID: "uid-" + na.Email, Email: na.Email, Metadata: na.Meta()}
	svc.lastIdent = ident
	return ident, nil, nil
}

func (svc *stubAuthService) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	if pwd, ok := svc.accounts[email]; !ok || pwd != password {
		return nil, auth.ErrInvalidCredentials
	}
	svc.lastSignedIn = email
	return &auth.Session{AccessToken: "tok", Identity: auth.Identity{ID: "uid-" + email, Email: email}}, nil
}

func (svc *stubAuthService) SignOut(ctx context.Context) error { return nil }

func (svc *stubAuthService) UpdateUser(ctx context.Context, uu auth.UserUpdate) (*auth.Identity, error) {
	if uu.Password != "" && svc.lastSignedIn != "" {
		svc.accounts[svc.lastSignedIn] = uu.Password
	}
	return &auth.Identity{}, nil
}

func (svc *stubAuthService) Subscribe(cb auth.Callback) func() { return func() {} }

func setup(t *testing.T) (*commandLine, *stubAuthService, profile.Repository) {
	authSvc := newStubAuthService()
	profiles := inmem.NewProfileRepository()
	return &commandLine{authSvc: authSvc, profiles: profiles}, authSvc, profiles
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	pwds       []string
}

func runCases(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		pwds := tt.pwds
		readPasswordFunc = func(fd int) ([]byte, error) {
			if len(pwds) == 0 {
				return nil, nil
			}
			pwd := pwds[0]
			pwds = pwds[1:]
			return []byte(pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			default:
				if err != nil {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, authSvc, profiles := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"adduser", "-email", "eva@uni.test"}, wantErr: errHelp},
		{
			name: "invalid role",
			args: []string{"adduser", "-email", "eva@uni.test", "-role", "boss"},
			pwds: []string{"s3cur3-Pass!"},
			wantErrStr: fmt.Sprintf("invalid role %q, must be one of %v", "boss", profile.AllRoles),
		},
		{
			name: "coordinator created",
			args: []string{"adduser", "-email", "Eva@uni.test", "-first", "Eva", "-last", "Diaz", "-role", "coordinator"},
			pwds: []string{"s3cur3-Pass!"},
		},
	}
	runCases(t, cli, tests)

	if _, ok := authSvc.accounts["eva@uni.test"]; !ok {
		t.Fatal("account was not registered")
	}
	prof, err := profiles.GetProfile(context.Background(), "uid-eva@uni.test")
	if err != nil {
		t.Fatalf("GetProfile() failed, %v", err)
	}
	if prof.Role != profile.RoleCoordinator {
		t.Errorf("role = %s, want %s", prof.Role, profile.RoleCoordinator)
	}
	if prof.FirstName != "Eva" {
		t.Errorf("first name = %s, want Eva", prof.FirstName)
	}
}

func Test_commandLine_setRole(t *testing.T) {
	cli, _, profiles := setup(t)

	_, err := profiles.UpsertProfile(context.Background(), profile.Profile{
		ID: "u1", Email: "ana@uni.test", Role: profile.RoleMember,
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []cliTest{
		{name: "missing args", args: []string{"setrole", "-id", "u1"}, wantErr: errHelp},
		{name: "unknown user", args: []string{"setrole", "-id", "nope", "-role", "tutor"}, wantErr: profile.ErrNotFound},
		{name: "promote to tutor", args: []string{"setrole", "-id", "u1", "-role", "tutor"}},
	}
	runCases(t, cli, tests)

	prof, err := profiles.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if prof.Role != profile.RoleTutor {
		t.Errorf("role = %s, want %s", prof.Role, profile.RoleTutor)
	}
}

func Test_commandLine_changePassword(t *testing.T) {
	cli, authSvc, _ := setup(t)
	authSvc.accounts["ana@uni.test"] = "old-Pass-1!"

	tests := []cliTest{
		{name: "no email", args: []string{"changepassword"}, wantErr: errHelp},
		{name: "no passwords", args: []string{"changepassword", "-email", "ana@uni.test"}, wantErr: errHelp},
		{
			name:    "wrong current password",
			args:    []string{"changepassword", "-email", "ana@uni.test"},
			pwds:    []string{"nope", "new-Pass-2!"},
			wantErr: auth.ErrInvalidCredentials,
		},
		{
			name: "rotated",
			args: []string{"changepassword", "-email", "ana@uni.test"},
			pwds: []string{"old-Pass-1!", "new-Pass-2!"},
		},
	}
	runCases(t, cli, tests)

	if authSvc.accounts["ana@uni.test"] != "new-Pass-2!" {
		t.Error("password was not rotated")
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)
	cli.db = new(sql.DB)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version", "fix": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a version", command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	runCases(t, cli, tests)
}
