package services

import (
	"strings"

	domain "github.com/vietcart/storefront/internal/domain"
)

const bankLogoBaseURL = "https://sandbox.vnpayment.vn/paymentv2/images/img/logos/bank/big/"

// bankDirectory mirrors the VNPay sandbox bank gallery. Codes are what the
// gateway accepts as vnp_BankCode.
var bankDirectory = []domain.Bank{
	{Code: "AMEX", Name: "American Express", LogoURL: bankLogoBaseURL + "AMEX.svg"},
	{Code: "JCB", Name: "JCB", LogoURL: bankLogoBaseURL + "JCB.svg"},
	{Code: "MASTERCARD", Name: "Mastercard", LogoURL: bankLogoBaseURL + "MASTERCARD.svg"},
	{Code: "UPI", Name: "UnionPay", LogoURL: bankLogoBaseURL + "UPI.svg"},
	{Code: "VISA", Name: "VISA", LogoURL: bankLogoBaseURL + "VISA.svg"},
	{Code: "ABBANK", Name: "ABBANK", LogoURL: bankLogoBaseURL + "abbank.svg"},
	{Code: "ACB", Name: "ACB", LogoURL: bankLogoBaseURL + "acb.svg"},
	{Code: "AGRIBANK", Name: "Agribank", LogoURL: bankLogoBaseURL + "agribank.svg"},
	{Code: "BACABANK", Name: "BAC A BANK", LogoURL: bankLogoBaseURL + "bacabank.svg"},
	{Code: "BAOVIETBANK", Name: "BaoViet Bank", LogoURL: bankLogoBaseURL + "baovietbank.svg"},
	{Code: "BIDV", Name: "BIDV", LogoURL: bankLogoBaseURL + "bidv.svg"},
	{Code: "DONGABANK", Name: "DongA Bank", LogoURL: bankLogoBaseURL + "dongabank.svg"},
	{Code: "EXIMBANK", Name: "Eximbank", LogoURL: bankLogoBaseURL + "eximbank.svg"},
	{Code: "GPBANK", Name: "GPBank", LogoURL: bankLogoBaseURL + "gpbank.svg"},
	{Code: "HDBANK", Name: "HDBank", LogoURL: bankLogoBaseURL + "hdbank.svg"},
	{Code: "HSBC", Name: "HSBC", LogoURL: bankLogoBaseURL + "hsbc.svg"},
	{Code: "IVB", Name: "IVB", LogoURL: bankLogoBaseURL + "ivb.svg"},
	{Code: "KIENLONGBANK", Name: "KienlongBank", LogoURL: bankLogoBaseURL + "kienlongbank.svg"},
	{Code: "LIENVIETBANK", Name: "LienVietBank", LogoURL: bankLogoBaseURL + "lienvietbank.svg"},
	{Code: "MAFC", Name: "Mirae Asset", LogoURL: bankLogoBaseURL + "mafc.svg"},
	{Code: "MB", Name: "MB Bank", LogoURL: bankLogoBaseURL + "mbbank.svg"},
	{Code: "MSBANK", Name: "MSB", LogoURL: bankLogoBaseURL + "msbank.svg"},
	{Code: "NAMABANK", Name: "Nam A Bank", LogoURL: bankLogoBaseURL + "namabank.svg"},
	{Code: "NCB", Name: "NCB", LogoURL: bankLogoBaseURL + "ncb.svg"},
	{Code: "OCB", Name: "OCB", LogoURL: bankLogoBaseURL + "ocb.svg"},
	{Code: "PGBANK", Name: "PGBank", LogoURL: bankLogoBaseURL + "pgbank.svg"},
	{Code: "PVCOMBANK", Name: "PVcomBank", LogoURL: bankLogoBaseURL + "pvcombank.svg"},
	{Code: "SACOMBANK", Name: "Sacombank", LogoURL: bankLogoBaseURL + "sacombank.svg"},
	{Code: "SAIGONBANK", Name: "SaigonBank", LogoURL: bankLogoBaseURL + "saigonbank.svg"},
	{Code: "SCB", Name: "SCB", LogoURL: bankLogoBaseURL + "scb.svg"},
	{Code: "SEABANK", Name: "SeABank", LogoURL: bankLogoBaseURL + "seabank.svg"},
	{Code: "SHB", Name: "SHB", LogoURL: bankLogoBaseURL + "shb.svg"},
	{Code: "SHINHANBANK", Name: "Shinhan Bank", LogoURL: bankLogoBaseURL + "shinhanbank.svg"},
	{Code: "TECHCOMBANK", Name: "Techcombank", LogoURL: bankLogoBaseURL + "techcombank.svg"},
	{Code: "TPBANK", Name: "TPBank", LogoURL: bankLogoBaseURL + "tpbank.svg"},
	{Code: "VIB", Name: "VIB", LogoURL: bankLogoBaseURL + "vib.svg"},
	{Code: "VIDBANK", Name: "VIDBank", LogoURL: bankLogoBaseURL + "vidbank.svg"},
	{Code: "VIETABANK", Name: "Viet A Bank", LogoURL: bankLogoBaseURL + "vietabank.svg"},
	{Code: "VIETBANK", Name: "VietBank", LogoURL: bankLogoBaseURL + "vietbank.svg"},
	{Code: "VIETCAPITALBANK", Name: "Viet Capital Bank", LogoURL: bankLogoBaseURL + "vietcapitalbank.svg"},
	{Code: "VIETCOMBANK", Name: "Vietcombank", LogoURL: bankLogoBaseURL + "vietcombank.svg"},
	{Code: "VIETCREDIT", Name: "VietCredit", LogoURL: bankLogoBaseURL + "vietcredit.svg"},
	{Code: "VIETINBANK", Name: "VietinBank", LogoURL: bankLogoBaseURL + "vietinbank.svg"},
	{Code: "VNPAYQR", Name: "VNPAY QR", LogoURL: bankLogoBaseURL + "vnpayqr.svg"},
	{Code: "VPBANK", Name: "VPBank", LogoURL: bankLogoBaseURL + "vpbank.svg"},
	{Code: "VRB", Name: "VRB", LogoURL: bankLogoBaseURL + "vrb.svg"},
	{Code: "WOORIBANK", Name: "Woori Bank", LogoURL: bankLogoBaseURL + "wooribank.svg"},
}

// listBanks returns the directory, optionally narrowed by a case-insensitive
// substring match on the bank name.
func listBanks(filter string) []domain.Bank {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		out := make([]domain.Bank, len(bankDirectory))
		copy(out, bankDirectory)
		return out
	}

	out := make([]domain.Bank, 0, len(bankDirectory))
	for _, bank := range bankDirectory {
		if strings.Contains(strings.ToLower(bank.Name), filter) {
			out = append(out, bank)
		}
	}
	return out
}

// lookupBank resolves a gateway bank code, case-insensitively.
func lookupBank(code string) (domain.Bank, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Bank{}, false
	}
	for _, bank := range bankDirectory {
		if strings.EqualFold(bank.Code, code) {
			return bank, true
		}
	}
	return domain.Bank{}, false
}
