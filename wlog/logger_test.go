package wlog_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/cloudnepal/wachy/wachytest"
	"github.com/cloudnepal/wachy/wlog"
)

func TestCentralLogger(t *testing.T) {
	log := wlog.NewLogger(100)
	w := &strings.Builder{}

	log.Write(w)
	wachytest.Equate(t, w.String(), "")

	log.Log(wlog.Allow, "test", "this is a test")
	log.Write(w)
	wachytest.Equate(t, w.String(), "test: this is a test\n")

	w.Reset()

	log.Log(wlog.Allow, "test2", "this is another test")
	log.Write(w)
	wachytest.Equate(t, w.String(), "test: this is a test\ntest2: this is another test\n")

	w.Reset()
	log.Tail(w, 100)
	wachytest.Equate(t, w.String(), "test: this is a test\ntest2: this is another test\n")

	w.Reset()
	log.Tail(w, 1)
	wachytest.Equate(t, w.String(), "test2: this is another test\n")

	w.Reset()
	log.Tail(w, 0)
	wachytest.Equate(t, w.String(), "")
}

type prohibitLogging struct {
	allow bool
}

func (p prohibitLogging) AllowLogging() bool {
	return p.allow
}

func TestPermissions(t *testing.T) {
	log := wlog.NewLogger(100)
	w := &strings.Builder{}

	log.Log(prohibitLogging{allow: false}, "tag", "detail")
	log.Write(w)
	wachytest.Equate(t, w.String(), "")

	log.Log(prohibitLogging{allow: true}, "tag", "detail")
	log.Write(w)
	wachytest.Equate(t, w.String(), "tag: detail\n")
}

func TestErrorLogging(t *testing.T) {
	log := wlog.NewLogger(100)
	w := &strings.Builder{}

	err := errors.New("test error")

	log.Log(wlog.Allow, "tag", err)
	log.Write(w)
	wachytest.Equate(t, w.String(), "tag: test error\n")

	log.Clear()
	w.Reset()

	log.Logf(wlog.Allow, "tag", "wrapped: %v", err)
	log.Write(w)
	wachytest.Equate(t, w.String(), "tag: wrapped: test error\n")
}

func TestCappedBuffer(t *testing.T) {
	log := wlog.NewLogger(2)
	w := &strings.Builder{}

	log.Log(wlog.Allow, "a", "1")
	log.Log(wlog.Allow, "b", "2")
	log.Log(wlog.Allow, "c", "3")
	log.Write(w)
	wachytest.Equate(t, w.String(), "b: 2\nc: 3\n")
}

func TestVerbosePermission(t *testing.T) {
	log := wlog.NewLogger(100)
	w := &strings.Builder{}

	wlog.SetVerbose(false)
	log.Log(wlog.Verbose, "tag", "hidden")
	log.Write(w)
	wachytest.Equate(t, w.String(), "")

	wlog.SetVerbose(true)
	defer wlog.SetVerbose(false)
	log.Log(wlog.Verbose, "tag", "shown")
	log.Write(w)
	wachytest.Equate(t, w.String(), "tag: shown\n")
}
