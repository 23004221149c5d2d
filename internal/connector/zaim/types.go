package zaim

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"lifesync/internal/fetch"
)

type credentials struct {
	ConsumerKey       string `mapstructure:"consumer_key" validate:"required"`
	ConsumerSecret    string `mapstructure:"consumer_secret" validate:"required"`
	AccessToken       string `mapstructure:"access_token" validate:"required"`
	AccessTokenSecret string `mapstructure:"access_token_secret" validate:"required"`
	UserID            int64  `mapstructure:"user_id"`
}

type verifyResponse struct {
	Me struct {
		ID int64 `json:"id"`
	} `json:"me"`
}

// Master is a category, genre or account.
type Master struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active int    `json:"active"`
}

type Transaction struct {
	ID            int64           `json:"id"`
	Mode          string          `json:"mode"`
	UserID        int64           `json:"user_id"`
	Date          string          `json:"date"`
	CategoryID    int64           `json:"category_id"`
	GenreID       int64           `json:"genre_id"`
	FromAccountID int64           `json:"from_account_id"`
	ToAccountID   int64           `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Comment       string          `json:"comment"`
	Name          string          `json:"name"`
	Place         string          `json:"place"`
	Created       string          `json:"created"`
	Modified      string          `json:"modified"`
	Active        *int            `json:"active"`
	ReceiptID     int64           `json:"receipt_id"`
}

// UserRecord pairs a payload with the Zaim user that owns it.
type UserRecord[T any] struct {
	UserID int64
	Item   fetch.Typed[T]
}

// TransactionRow is the stored shape of a transaction.
type TransactionRow struct {
	ZaimUserID    int64           `json:"zaim_user_id"`
	ID            int64           `json:"id"`
	Mode          string          `json:"mode"`
	Date          string          `json:"date"`
	CategoryID    int64           `json:"category_id"`
	GenreID       int64           `json:"genre_id"`
	FromAccountID *int64          `json:"from_account_id"`
	ToAccountID   *int64          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Comment       string          `json:"comment,omitempty"`
	Name          string          `json:"name,omitempty"`
	Place         string          `json:"place,omitempty"`
	Active        bool            `json:"active"`
	Raw           json.RawMessage `json:"raw"`
}

type moneyResponse struct {
	Money []fetch.Typed[Transaction] `json:"money"`
}

type categoryResponse struct {
	Categories []fetch.Typed[Master] `json:"categories"`
}

type genreResponse struct {
	Genres []fetch.Typed[Master] `json:"genres"`
}

type accountResponse struct {
	Accounts []fetch.Typed[Master] `json:"accounts"`
}
