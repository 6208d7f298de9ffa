package logging

import "testing"

func TestNewLoggerWithFieldsDoesNotPanicOnEmptyMap(t *testing.T) {
	l := New()
	l.WithFields(map[string]interface{}{"a": 1})
	l.Info("ok")
}

func TestWithFieldsReturnsSameLoggerAndAccumulates(t *testing.T) {
	l := New()
	got := l.WithFields(map[string]interface{}{"a": 1})
	if got != Logger(l) {
		t.Fatalf("expected WithFields to return the same receiver")
	}

	l.WithFields(map[string]interface{}{"b": 2})
	if _, ok := l.fields["a"]; !ok {
		t.Fatalf("expected fields from an earlier WithFields call to persist")
	}
	if _, ok := l.fields["b"]; !ok {
		t.Fatalf("expected fields from the latest WithFields call to be present")
	}
}
