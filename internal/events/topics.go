package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicOrderCreated         = "order.created"
	TopicOrderPaid            = "order.paid"
	TopicOrderWorkflowUpdated = "order.workflow_updated"
	TopicPromotionRedeemed    = "promotion.redeemed"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderCreated,
		TopicOrderPaid,
		TopicOrderWorkflowUpdated,
		TopicPromotionRedeemed,
	}
}
