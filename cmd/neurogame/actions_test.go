package main

import (
	"reflect"
	"testing"
)

func TestDemoActionsDescribeThemselves(t *testing.T) {
	actions := demoActions()
	if len(actions) != 3 {
		t.Fatalf("demoActions() = %d actions, want 3", len(actions))
	}
	for _, a := range actions {
		if _, err := a.Schema(); err != nil {
			t.Fatalf("%s: Schema() error = %v", a.Name(), err)
		}
	}

	list, err := actions[2].Schema()
	if err != nil {
		t.Fatal(err)
	}
	field := list.Properties["testString"]
	if field == nil || !reflect.DeepEqual(field.Enum, []string{"response1", "response2"}) {
		t.Fatalf("testString = %+v", field)
	}
	if field.Description != "One of the offered responses" {
		t.Fatalf("description = %q", field.Description)
	}
}
