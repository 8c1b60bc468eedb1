package vault

import (
	"github.com/mohae/deepcopy"
)

// Topics published by a Client.
const (
	// TopicAuthenticated carries an AuthenticatedEvent after every
	// successful login, renewals included.
	TopicAuthenticated = "authenticated"
	// TopicLoginError carries an ErrorEvent when a login fails.
	TopicLoginError = "error:login"
	// TopicSecret carries a SecretEvent for every stored secret.
	TopicSecret = "secret"
	// TopicError carries an ErrorEvent for every failed fetch attempt,
	// every rejected watch request and every failed login.
	TopicError = "error"
)

// SecretTopic is the topic carrying the value stored at address, as a
// private copy, whenever it is fetched.
func SecretTopic(address string) string {
	return "secret:" + address
}

// AuthenticatedEvent describes a successful login.
type AuthenticatedEvent struct {
	Backend      string
	LeaseSeconds int
}

// SecretEvent describes a freshly stored secret.
type SecretEvent struct {
	Address string
	Value   interface{}
}

// ErrorEvent describes a failure.
type ErrorEvent struct {
	Op  string
	Err error
}

// Subscribe registers handler for topic and returns a function that
// removes it. Handlers run asynchronously, in publish order per subscriber.
func (c *Client) Subscribe(topic string, handler func(topic string, data interface{})) func() {
	return c.hub.Subscribe(topic, handler)
}

func (c *Client) publish(topic string, data interface{}) {
	c.hub.Publish(topic, data)
}

func (c *Client) publishSecret(address string, value interface{}) {
	c.publish(SecretTopic(address), deepcopy.Copy(value))
	c.publish(TopicSecret, SecretEvent{Address: address, Value: deepcopy.Copy(value)})
}

func (c *Client) publishError(topic, op string, err error) {
	c.publish(topic, ErrorEvent{Op: op, Err: err})
}
