package orders

const (
	TopicInvoiceReady    = "store.invoice.ready"
	TopicInvoiceFailed   = "store.invoice.failed"
	TopicPaymentExpiring = "store.payment.expiring"
	TopicPaymentExpired  = "store.payment.expired"
	TopicPaymentPaid     = "store.payment.paid"
	TopicOrderDelivered  = "store.order.delivered"
	TopicPaymentLate     = "store.payment.late"
)

// Partition key = kode order/topup, supaya semua event 1 transaksi maintain urutan.
func PartitionKey(code string) []byte { return []byte(code) }
