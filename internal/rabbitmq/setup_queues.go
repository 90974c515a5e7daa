package rabbitmq

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetLifecycleQueues возвращает очереди событий жизненного цикла подписки.
func GetLifecycleQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "lifecycle.trial_rolled", RoutingKey: "trial_rolled"},
		{QueueName: "lifecycle.plan_ended", RoutingKey: "plan_ended"},
	}
}
