package recorder_test

import (
	"context"
	"errors"

	"github.com/roach88/provenant/internal/origin"
	"github.com/roach88/provenant/internal/recorder"
)

// GreetInput is the input of fixtureGreet.
type GreetInput struct {
	Name string `json:"name"`
}

// fixtureGreet greets someone.
func fixtureGreet(_ context.Context, in GreetInput) (origin.String, error) {
	return origin.Sprintf("Hello %s", in.Name), nil
}

func fixtureSub(_ context.Context, _ struct{}) (origin.String, error) {
	return origin.Plain("sub result"), nil
}

var errFixtureFailed = errors.New("fixture failed")

func fixtureFail(_ context.Context, _ string) (string, error) {
	return "", errFixtureFailed
}

func fixtureLength(_ context.Context, s string) (int, error) {
	return len(s), nil
}

// TopicInput carries a possibly tracked topic into fixtureHaiku.
type TopicInput struct {
	Topic origin.String `json:"topic"`
}

func fixtureHaiku(_ context.Context, in TopicInput) ([]recorder.Message, error) {
	return []recorder.Message{
		recorder.System(origin.Plain("You write haiku.")),
		recorder.User(origin.Sprintf("Write a haiku about %s", in.Topic)),
	}, nil
}

func fixtureTopic(_ context.Context, seed string) (origin.String, error) {
	return origin.Plain("autumn " + seed), nil
}

func fixtureBytes(_ context.Context, data []byte) (int, error) {
	return len(data), nil
}

// fixtureDouble is a leaf literal: it needs no stack frame.
var fixtureDouble = func(_ context.Context, n int) (int, error) {
	return n * 2, nil
}

// fixturePing and fixturePong call each other.
func fixturePing(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	return fixturePong(ctx, n-1)
}

func fixturePong(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 1, nil
	}
	return fixturePing(ctx, n-1)
}
