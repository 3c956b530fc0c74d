package systemd

import (
	"errors"
	"reflect"
	"testing"

	"catalogwatch/pkg/logx"
)

func TestNotifierStates(t *testing.T) {
	t.Parallel()
	var got []string
	n := &Notifier{Log: logx.Nop(), send: func(_ bool, state string) (bool, error) {
		got = append(got, state)
		return true, nil
	}}
	if !n.Ready() {
		t.Fatal("Ready = false, want true")
	}
	n.Status("idle")
	n.Reloading()
	n.Stopping()
	want := []string{"READY=1", "STATUS=idle", "RELOADING=1", "STOPPING=1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
}

func TestNotifierOutsideSystemd(t *testing.T) {
	t.Parallel()
	n := &Notifier{send: func(bool, string) (bool, error) { return false, errors.New("no socket") }}
	if n.Ready() {
		t.Fatal("Ready = true, want false")
	}
}
