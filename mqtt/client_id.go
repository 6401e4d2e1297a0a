// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PublisherClientID is the client ID used by the publisher with the given
// publisher ID.
func PublisherClientID(publisherID int32) string {
	return fmt.Sprintf("publisher_%d", publisherID)
}

// SubscriberClientID returns a fresh client ID for a subscriber.
func SubscriberClientID() string {
	return "subscriber_" + randomSuffix()
}

// RandomClientID generates a random client ID. It fully invalidates session
// guarantees, so it is only suitable for clean sessions.
func RandomClientID() string {
	return "tempmesh_" + randomSuffix()
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
