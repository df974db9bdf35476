// Command demo starts the local dev stub, signs a user up against it and
// drives the session store through the full lifecycle: bootstrap, sign-in,
// profile edit and sign-out. It is the quickest way to see the whole stack
// working offline.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/auth"
	"github.com/uniteams/uniteams/core/profile"
	"github.com/uniteams/uniteams/core/session"
	"github.com/uniteams/uniteams/services/devstub"
	"github.com/uniteams/uniteams/services/email"
	"github.com/uniteams/uniteams/services/hostedauth"
	"github.com/uniteams/uniteams/storage/inmem"
	"github.com/uniteams/uniteams/storage/rest"
)

func main() {
	logger := core.NewStdLogger(log.New(os.Stdout, "DEMO : ", log.LstdFlags))

	// local stub in place of the hosted provider
	stub := devstub.NewServer(&devstub.Options{
		Address:        core.Conf.Stub.Addr,
		SecretKey:      []byte(core.Conf.Stub.SecretKey),
		AnonKey:        core.Conf.Hosted.AnonKey,
		ServiceKey:     core.Conf.Hosted.ServiceKey,
		AccessTokenTTL: core.Conf.Stub.AccessTokenTTL,
		AutoConfirm:    true,
		DisableReqLogs: true,
		EmailSvc:       email.NewConsoleService(core.Conf.AppName, core.Conf.DefaultFromEmail),
		Profiles:       inmem.NewProfileRepository(),
	})
	go stub.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stub.Stop(ctx)
	}()

	baseURL := "http://" + core.Conf.Stub.Addr
	waitReady(logger, baseURL)
	logger.Info("dev stub listening", baseURL)

	authSvc := hostedauth.NewClient(&hostedauth.Options{
		BaseURL:     baseURL,
		AnonKey:     core.Conf.Hosted.AnonKey,
		Logger:      logger,
		AutoRefresh: true,
	})
	defer authSvc.Close()

	// route profile reads through the data API, authenticated as the
	// signed-in user
	var store *session.Store
	profiles := rest.NewProfileRepository(&rest.Options{
		BaseURL: baseURL,
		AnonKey: core.Conf.Hosted.AnonKey,
		Tokens:  func() (string, bool) { return store.AccessToken() },
		Logger:  logger,
	})
	store = session.NewStore(authSvc, profiles, &session.Options{Logger: logger})
	defer store.Close()

	unsubscribe := store.OnChange(func(st session.State) {
		switch {
		case st.InitialLoading:
			logger.Info("bootstrapping...")
		case st.Identity == nil:
			logger.Info("signed out")
		case st.Profile != nil:
			logger.Info("signed in", st.Profile.DisplayName(), "role="+st.Profile.Role)
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store.Initialize(ctx)

	if res := store.SignUp(ctx, auth.NewAccount{
		Email:     "ana.gomez@uni.test",
		Password:  "s3cur3-Pass!",
		FirstName: "Ana",
		LastName:  "Gomez",
	}); !res.OK() {
		logger.Fatal("sign up failed", res.Err, res.Fields)
	}

	if res := store.SignIn(ctx, "ana.gomez@uni.test", "s3cur3-Pass!"); !res.OK() {
		logger.Fatal("sign in failed", res.Err)
	}
	logState(logger, store)

	bio := "Linear algebra study group regular."
	if res := store.UpdateProfile(ctx, profile.Update{Bio: &bio}); !res.OK() {
		logger.Fatal("profile update failed", res.Err)
	}
	logState(logger, store)

	if res := store.SignOut(ctx); !res.OK() {
		logger.Fatal("sign out failed", res.Err)
	}
	logState(logger, store)
}

// waitReady polls the stub until it accepts requests.
func waitReady(logger core.Logger, baseURL string) {
	for attempts := 1; attempts <= 30; attempts++ {
		resp, err := http.Get(baseURL + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}
	logger.Fatal("dev stub did not come up", baseURL)
}

func logState(logger core.Logger, store *session.Store) {
	st := store.State()
	if st.Identity == nil {
		logger.Info("state: anonymous")
		return
	}
	logger.Info("state:", st.Identity.Email, st.Profile)
}
