package storage

// Record is a message as stored in the record table
type Record struct {
	ID        string `db:"id" json:"id"`
	Sender    string `db:"sender" json:"sender"`
	Content   string `db:"content" json:"content"`
	RawMarkup string `db:"raw_markup" json:"raw_markup"`
	Date      string `db:"date" json:"date"`             // YYYY.MM.DD, may be empty
	DateLabel string `db:"date_label" json:"date_label"` // native export label
	HasLink   bool   `db:"has_link" json:"has_link"`
	Seq       int    `db:"seq" json:"-"` // scan order
}

// SenderCount is a distinct sender with its message count
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}
