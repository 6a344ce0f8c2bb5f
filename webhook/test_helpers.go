package webhook

import "github.com/stretchr/testify/mock"

// MatchSubscription creates a custom matcher for subscription arguments in mocks
func MatchSubscription(matcher func(Subscription) bool) interface{} {
	return mock.MatchedBy(matcher)
}
