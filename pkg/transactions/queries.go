package transactions

const selectColumns = `id, transaction_id, amount::text AS amount,
	COALESCE(currency, '') AS currency, COALESCE(payment_method, '') AS payment_method,
	COALESCE(status, '') AS status, COALESCE(customer_id, '') AS customer_id,
	COALESCE(merchant_id, '') AS merchant_id, "timestamp", processing_status, processed_timestamp`

const (
	FindByStatusQuery = `SELECT ` + selectColumns + `
	FROM transactions
	WHERE processing_status = $1
	ORDER BY "timestamp", id`

	UpdateStatusQuery = `UPDATE transactions
	SET processing_status = $1, processed_timestamp = $2
	WHERE id = $3`

	// ClaimQuery only applies when the row is still UNPROCESSED.
	ClaimQuery = `UPDATE transactions
	SET processing_status = $1, claimed_at = $2
	WHERE id = $3 AND processing_status = $4`

	ReleaseQuery = `UPDATE transactions
	SET processing_status = $1, claimed_at = NULL
	WHERE id = $2 AND processing_status = $3`

	// ReclaimExpiredQuery returns claims older than $3 to UNPROCESSED. Rows
	// claimed before claimed_at existed have no stamp and count as expired.
	ReclaimExpiredQuery = `UPDATE transactions
	SET processing_status = $1, claimed_at = NULL
	WHERE processing_status = $2 AND (claimed_at IS NULL OR claimed_at < $3)`

	InsertQuery = `INSERT INTO transactions
	(id, transaction_id, amount, currency, payment_method, status, customer_id, merchant_id, "timestamp", processing_status, processed_timestamp)
	VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11)`
)
