package main

import "errors"

var errEventBusRequired = errors.New("the indexer needs an event bus to consume lifecycle events")
