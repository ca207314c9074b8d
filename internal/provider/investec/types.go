package investec

import "github.com/dvloznov/ledger-sync/internal/domain"

type accountsResponse struct {
	Data struct {
		Accounts []account `json:"accounts"`
	} `json:"data"`
}

type account struct {
	AccountID     string `json:"accountId"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	ReferenceName string `json:"referenceName"`
	ProductName   string `json:"productName"`
}

func (a account) toDomain() domain.ProviderAccount {
	return domain.ProviderAccount{
		AccountID:     a.AccountID,
		AccountNumber: a.AccountNumber,
		AccountName:   a.AccountName,
		ReferenceName: a.ReferenceName,
		ProductName:   a.ProductName,
	}
}

type transactionsResponse struct {
	Data struct {
		Transactions []domain.ProviderTransaction `json:"transactions"`
	} `json:"data"`
}
