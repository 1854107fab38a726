package main

import (
	"context"
	"fmt"
	"log"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/action"
)

type listResponse struct {
	TestString string `json:"testString" desc:"One of the offered responses"`
}

type echoHandler struct{}

func (echoHandler) Validate(string) error { return nil }

func (echoHandler) Process(_ context.Context, msg string) error {
	log.Printf("echo: %s", msg)
	return nil
}

func (echoHandler) SuccessMessage(msg string) string {
	return "Successfully echoed: " + msg
}

type listHandler struct{}

func (listHandler) Validate(listResponse) error { return nil }

func (listHandler) Process(_ context.Context, v listResponse) error {
	log.Printf("list: %+v", v)
	return nil
}

func (listHandler) SuccessMessage(v listResponse) string {
	return fmt.Sprintf("Successfully processed: %+v", v)
}

func (listHandler) LimitedResponses(path string) []string {
	if path == "testString" {
		return []string{"response1", "response2"}
	}
	return nil
}

func demoActions() []action.Action {
	return []action.Action{
		action.New[string]("echo", "A simple command that echoes the message received to the logs.", echoHandler{}),
		action.NewWithoutPayload("no-response", "This is the no response action", action.PlainFuncs{
			ProcessFunc: func(context.Context) error {
				log.Printf("processing no-response action")
				return nil
			},
			Message: "Successful!",
		}),
		action.New[listResponse]("list", "A simple list test action.", listHandler{}),
	}
}
