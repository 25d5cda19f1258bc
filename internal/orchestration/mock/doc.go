// Package mock provides in-memory implementations of the client interfaces.
//
// Client implements client.HeadlessClient. With Script set it spawns
// processes that replay a fixed event sequence:
//
//	c := mock.NewScriptedClient([]client.OutputEvent{
//	    mock.InitEvent("sess-1", "/work"),
//	    mock.TextEvent("hello"),
//	    mock.ResultEvent(10, 5, 0.01),
//	}, nil)
//
// Without a script, Spawn returns a running Process that the test drives with
// SendEvent, Complete and Fail.
//
// Importing the package registers the mock under client.ClientMock.
package mock
