package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exitError is a test error carrying an exit status, like *exec.ExitError.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitError) ExitCode() int { return int(e) }

// recordedCall is one invocation captured by fakeRunner.
type recordedCall struct {
	name string
	args []string
}

// fakeRunner answers security subcommands from a map keyed by subcommand.
type fakeRunner struct {
	calls   []recordedCall
	outputs map[string][]byte
	errs    map[string]error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{name: name, args: args})

	sub := args[0]

	return f.outputs[sub], f.errs[sub]
}

func newTestKeychain(r *fakeRunner) *Keychain {
	k := NewKeychain(slog.Default())
	k.run = r.run

	return k
}

func TestKeychain_DefaultID(t *testing.T) {
	r := &fakeRunner{outputs: map[string][]byte{
		"default-keychain": []byte("    \"/Users/ci/Library/Keychains/login.keychain-db\"\n"),
	}}

	id, err := newTestKeychain(r).DefaultID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/Users/ci/Library/Keychains/login.keychain-db", id)
	assert.Equal(t, "security", r.calls[0].name)
}

func TestKeychain_DefaultID_Failure(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"default-keychain": exitError(1)}}

	_, err := newTestKeychain(r).DefaultID(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestKeychain_Unlock(t *testing.T) {
	r := &fakeRunner{}

	require.NoError(t, newTestKeychain(r).Unlock(context.Background(), "/tmp/ci.keychain", "pw"))
	assert.Equal(t, []string{"unlock-keychain", "-p", "pw", "/tmp/ci.keychain"}, r.calls[0].args)
}

func TestKeychain_Unlock_FailureHidesSecret(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"unlock-keychain": exitError(51)}}

	err := newTestKeychain(r).Unlock(context.Background(), "/tmp/ci.keychain", "hunter2")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestKeychain_Find(t *testing.T) {
	r := &fakeRunner{outputs: map[string][]byte{"find-generic-password": []byte("sl.token\n")}}

	secret, found, err := newTestKeychain(r).Find(context.Background(), "/tmp/ci.keychain", ServiceName)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "sl.token", secret)
	assert.Equal(t,
		[]string{"find-generic-password", "-s", ServiceName, "-w", "/tmp/ci.keychain"},
		r.calls[0].args)
}

func TestKeychain_Find_NotFound(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"find-generic-password": exitError(exitItemNotFound)}}

	secret, found, err := newTestKeychain(r).Find(context.Background(), "/tmp/ci.keychain", ServiceName)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, secret)
}

func TestKeychain_Find_OtherFailure(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"find-generic-password": exitError(36)}}

	_, found, err := newTestKeychain(r).Find(context.Background(), "/tmp/ci.keychain", ServiceName)
	require.Error(t, err)
	assert.False(t, found)
	assert.Contains(t, err.Error(), "exit status 36")
}

func TestKeychain_Add(t *testing.T) {
	r := &fakeRunner{}

	err := newTestKeychain(r).Add(context.Background(), "/tmp/ci.keychain", ServiceName, ServiceName, "sl.token")
	require.NoError(t, err)

	args := strings.Join(r.calls[0].args, " ")
	assert.Equal(t,
		"add-generic-password -U -a "+ServiceName+" -s "+ServiceName+" -w sl.token /tmp/ci.keychain",
		args)
}

func TestKeychain_Add_NonZeroExit(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"add-generic-password": exitError(45)}}

	err := newTestKeychain(r).Add(context.Background(), "/tmp/ci.keychain", ServiceName, ServiceName, "sl.token")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "sl.token")
}
