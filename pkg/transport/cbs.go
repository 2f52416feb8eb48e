package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudmsg/amqp-device-go/pkg/amqpio"
	"github.com/cloudmsg/amqp-device-go/pkg/credential"
	"github.com/cloudmsg/amqp-device-go/pkg/log"
	"github.com/cloudmsg/amqp-device-go/pkg/sas"
)

var errAuthRejected = errors.New("cbs put-token rejected")

// authenticator keeps the SAS token timing of the CBS exchange.
type authenticator struct {
	state CBSState

	lifetime time.Duration
	refresh  time.Duration
	timeout  time.Duration
	keyName  string

	// tokenCreated is when the current token was minted or cloned.
	tokenCreated time.Time
	// submitted is when the pending put-token was sent.
	submitted time.Time
}

func newAuthenticator() authenticator {
	return authenticator{
		lifetime: DefaultSASTokenLifetime,
		refresh:  DefaultSASTokenRefreshTime,
		timeout:  DefaultCBSRequestTimeout,
	}
}

// checkTiming warns about settings under which tokens expire before they
// are refreshed.
func (a *authenticator) checkTiming(logger *slog.Logger) {
	if a.refresh >= a.lifetime {
		logger.Warn("sas token refresh time is not below its lifetime",
			"refresh", a.refresh, "lifetime", a.lifetime)
	}
}

// refreshDue reports whether the current token is old enough to replace.
// A failed clock counts as due.
func (a *authenticator) refreshDue(now time.Time) bool {
	return now.IsZero() || now.Sub(a.tokenCreated) >= a.refresh
}

// timedOut reports whether the pending put-token has expired. A failed
// clock counts as expired.
func (a *authenticator) timedOut(now time.Time) bool {
	return now.IsZero() || now.Sub(a.submitted) >= a.timeout
}

// expiry returns the expiry of a token minted at now, in Unix seconds.
func (a *authenticator) expiry(now time.Time) int64 {
	return now.Unix() + a.lifetime.Milliseconds()/1000
}

func (t *Transport) openCBS() error {
	cbs, err := t.session.NewCBS(t.onCBSState)
	if err != nil {
		return fmt.Errorf("create cbs: %w", err)
	}
	t.cbs = cbs
	if err := cbs.Open(t.onCBSOpen); err != nil {
		return fmt.Errorf("open cbs: %w", err)
	}
	t.setCBSState(CBSIdle)
	return nil
}

func (t *Transport) closeCBS() {
	if t.cbs == nil {
		return
	}
	if err := t.cbs.Close(); err != nil {
		t.logger.Debug("cbs close", "error", err)
	}
	t.cbs.Destroy()
	t.cbs = nil
	t.setCBSState(CBSIdle)
}

// authenticate advances the CBS state machine by one tick.
func (t *Transport) authenticate(now time.Time) error {
	switch t.auth.state {
	case CBSIdle:
		return t.putToken(now)

	case CBSAuthInProgress:
		if t.auth.timedOut(now) {
			audience := t.addr.devicePath
			t.capture(log.Event{
				Category: log.CategoryControl,
				Token:    &log.TokenEvent{Type: log.TokenTimeout, Audience: audience},
			})
			t.metrics.authenticated(false)
			return ErrAuthTimeout
		}

	case CBSAuthenticated:
		if t.auth.refreshDue(now) {
			t.logger.Debug("sas token refresh due")
			t.setCBSState(CBSIdle)
		}
	}
	return nil
}

func (t *Transport) putToken(now time.Time) error {
	if now.IsZero() {
		return ErrClock
	}

	var token string
	switch t.cred.Kind() {
	case credential.KindDeviceKey:
		var err error
		token, err = sas.Mint(t.cred.DeviceKey(), t.addr.devicePath, t.auth.keyName, t.auth.expiry(now))
		if err != nil {
			return fmt.Errorf("mint sas token: %w", err)
		}
	case credential.KindDeviceSasToken:
		token = t.cred.SasToken()
		if sas.Expired(token, now) {
			t.logger.Warn("supplied sas token is expired")
		}
	default:
		return fmt.Errorf("credential %s does not use cbs", t.cred.Kind())
	}

	if err := t.cbs.PutToken(TokenType, t.addr.devicePath, token, t.onPutToken); err != nil {
		return fmt.Errorf("put token: %w", err)
	}

	t.auth.tokenCreated = now
	t.auth.submitted = now
	t.setCBSState(CBSAuthInProgress)
	return nil
}

func (t *Transport) onPutToken(result amqpio.CBSResult, status int, description string) {
	if t.auth.state != CBSAuthInProgress {
		return
	}
	if result != amqpio.CBSOK {
		t.metrics.authenticated(false)
		t.markError("put token", fmt.Errorf("%w: %s (status %d) %s", errAuthRejected, result, status, description))
		return
	}
	t.metrics.authenticated(true)
	t.retry.Succeeded()
	t.setCBSState(CBSAuthenticated)
}

func (t *Transport) onCBSOpen(result amqpio.OpenResult) {
	if result != amqpio.OpenOK {
		t.markError("open cbs", errors.New("cbs open failed"))
	}
}

func (t *Transport) onCBSState(state, previous amqpio.EndpointState) {
	if state == amqpio.EndpointError && previous != amqpio.EndpointError {
		t.markError("cbs", fmt.Errorf("cbs entered %s", state))
	}
}

func (t *Transport) setCBSState(state CBSState) {
	if t.auth.state == state {
		return
	}
	previous := t.auth.state
	t.auth.state = state
	t.captureState(log.StateEntityCBS, previous.String(), state.String(), "")
}
