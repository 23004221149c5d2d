package zaim

import (
	"strconv"
	"time"

	"lifesync/internal/connector"
	"lifesync/internal/engine"
	"lifesync/internal/syncerr"
)

func key(userID, id int64) string {
	return strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(id, 10)
}

func TransformMaster(r UserRecord[Master]) (*engine.Row, error) {
	if r.Item.Value.ID == 0 {
		return nil, syncerr.Validation("zaim master without id")
	}
	return &engine.Row{SourceID: key(r.UserID, r.Item.Value.ID), Data: r.Item.Raw}, nil
}

// TransformTransaction keys transactions as userId:id. Transfers need both
// accounts; active=-1 marks a deleted transaction.
func (c *Connector) TransformTransaction(r UserRecord[Transaction]) (*engine.Row, error) {
	return transformTransaction(r, c.loc)
}

func transformTransaction(r UserRecord[Transaction], loc *time.Location) (*engine.Row, error) {
	tx := r.Item.Value
	if tx.ID == 0 {
		return nil, syncerr.Validation("transaction without id")
	}
	if tx.Mode == "transfer" && (tx.FromAccountID <= 0 || tx.ToAccountID <= 0) {
		return nil, nil
	}
	userID := r.UserID
	if userID == 0 {
		userID = tx.UserID
	}
	if tx.Active != nil && *tx.Active == -1 {
		return &engine.Row{SourceID: key(userID, tx.ID), Deleted: true}, nil
	}
	row := TransactionRow{
		ZaimUserID:    userID,
		ID:            tx.ID,
		Mode:          tx.Mode,
		Date:          tx.Date,
		CategoryID:    tx.CategoryID,
		GenreID:       tx.GenreID,
		FromAccountID: accountID(tx.FromAccountID),
		ToAccountID:   accountID(tx.ToAccountID),
		Amount:        tx.Amount,
		Comment:       tx.Comment,
		Name:          tx.Name,
		Place:         tx.Place,
		Active:        tx.Active == nil || *tx.Active == 1,
		Raw:           r.Item.Raw,
	}
	var recordAt *time.Time
	for _, s := range []string{tx.Modified, tx.Created, tx.Date} {
		if t, ok := connector.ParseTime(s, loc); ok {
			recordAt = &t
			break
		}
	}
	return &engine.Row{SourceID: key(userID, tx.ID), Data: row, RecordAt: recordAt}, nil
}

func accountID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
