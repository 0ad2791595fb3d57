package authstate

import (
	"github.com/sahilvermadev/mapx/internal/onboarding"
	"github.com/sahilvermadev/mapx/internal/token"
)

// Phase names the machine's top-level state.
type Phase string

const (
	PhaseBootstrapping   Phase = "bootstrapping"
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseLoggingOut      Phase = "logging_out"
)

// state is the internal tagged union. Only authenticated carries data, so
// a logged-out user or a logging-out authenticated session cannot be built.
type state interface {
	phase() Phase
}

type bootstrapping struct{}

type unauthenticated struct{}

type loggingOut struct{}

type authenticated struct {
	user *token.Identity
	// status is nil until the onboarding check answers.
	status *onboarding.Status
}

func (bootstrapping) phase() Phase   { return PhaseBootstrapping }
func (unauthenticated) phase() Phase { return PhaseUnauthenticated }
func (loggingOut) phase() Phase      { return PhaseLoggingOut }
func (authenticated) phase() Phase   { return PhaseAuthenticated }

// State is the flattened, read-only view handed to observers.
type State struct {
	Phase             Phase              `json:"phase" yaml:"phase"`
	IsAuthenticated   bool               `json:"isAuthenticated" yaml:"is_authenticated"`
	IsChecking        bool               `json:"isChecking" yaml:"is_checking"`
	IsInitialized     bool               `json:"isInitialized" yaml:"is_initialized"`
	User              *token.Identity    `json:"user" yaml:"user"`
	ShowUsernameModal bool               `json:"showUsernameModal" yaml:"show_username_modal"`
	UsernameStatus    *onboarding.Status `json:"usernameStatus" yaml:"username_status"`
	IsLoggingOut      bool               `json:"isLoggingOut" yaml:"is_logging_out"`
}

func snapshot(s state, initialized bool) State {
	out := State{Phase: s.phase(), IsInitialized: initialized}
	switch v := s.(type) {
	case bootstrapping:
		out.IsChecking = true
	case loggingOut:
		out.IsLoggingOut = true
	case authenticated:
		out.IsAuthenticated = true
		if v.user != nil {
			u := *v.user
			out.User = &u
		}
		if v.status != nil {
			st := *v.status
			out.UsernameStatus = &st
			out.ShowUsernameModal = !st.HasUsername
		}
	}
	return out
}
