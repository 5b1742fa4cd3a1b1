package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	require.Equal(t, "projects/p1/topics/orders", TopicResourceName("p1", "orders"))
	require.Equal(t, "projects/x/topics/y", TopicResourceName("p1", "projects/x/topics/y"))
	require.Empty(t, TopicResourceName("", "orders"))
	require.Empty(t, TopicResourceName("p1", "  "))
}

func TestTopicNamesSkipsBlank(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: " orders ", InventoryTopic: ""})
	require.Equal(t, []string{"orders"}, names)
}
