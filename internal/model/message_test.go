package model

import (
	"reflect"
	"testing"
)

func TestTemplateVariables_ContiguousPrefix(t *testing.T) {
	t.Parallel()

	m := Message{Variable1: "a", Variable2: "b", Variable3: "c"}

	got := m.TemplateVariables()
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestTemplateVariables_HoleTruncatesList(t *testing.T) {
	t.Parallel()

	// variable3 is empty, so variable4 must never be read.
	m := Message{Variable1: "a", Variable2: "b", Variable4: "d"}

	got := m.TemplateVariables()
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestTemplateVariables_WhitespaceCountsAsEmpty(t *testing.T) {
	t.Parallel()

	m := Message{Variable1: " a ", Variable2: "   ", Variable3: "c"}

	got := m.TemplateVariables()
	want := []string{"a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestTemplateVariables_NoneSet(t *testing.T) {
	t.Parallel()

	m := Message{Phone: "123"}
	if got := m.TemplateVariables(); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSetVariable(t *testing.T) {
	t.Parallel()

	var m Message
	m.SetVariable(1, "a")
	m.SetVariable(10, "j")
	m.SetVariable(11, "ignored")
	m.SetVariable(0, "ignored")

	if m.Variable1 != "a" {
		t.Fatalf("expected variable1 %q, got %q", "a", m.Variable1)
	}
	if m.Variable10 != "j" {
		t.Fatalf("expected variable10 %q, got %q", "j", m.Variable10)
	}
}

func TestHasDirectCredentials(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		msg  Message
		want bool
	}{
		{"both set", Message{Token: "t", PhoneID: "p"}, true},
		{"token only", Message{Token: "t"}, false},
		{"phone id only", Message{PhoneID: "p"}, false},
		{"neither", Message{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.msg.HasDirectCredentials(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
