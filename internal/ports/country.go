package ports

import "strings"

// countryNumeric maps an ISO 3166-1 alpha-2 code to the numeric id osu!
// clients expect in USER_PRESENCE. This is a representative subset of the
// full table the original server ships; any code not listed here (along
// with the "XX" unknown sentinel) resolves to 0.
var countryNumeric = map[string]uint8{
	"XX": 0,
	"AD": 2, "AE": 3, "AF": 4, "AG": 5, "AI": 6, "AL": 8, "AM": 9,
	"AO": 10, "AQ": 11, "AR": 12, "AS": 13, "AT": 14, "AU": 15,
	"AW": 16, "AZ": 18, "BA": 19, "BB": 20, "BD": 21, "BE": 22,
	"BF": 23, "BG": 24, "BH": 25, "BI": 26, "BJ": 27, "BM": 29,
	"BN": 30, "BO": 31, "BR": 33, "BS": 34, "BT": 35, "BW": 38,
	"BY": 39, "BZ": 40, "CA": 41, "CH": 49, "CL": 53, "CN": 55,
	"CO": 56, "CR": 58, "CU": 59, "CY": 61, "CZ": 62, "DE": 63,
	"DK": 64, "DO": 67, "DZ": 68, "EC": 69, "EE": 70, "EG": 71,
	"ES": 75, "ET": 77, "FI": 79, "FJ": 80, "FR": 83, "GB": 85,
	"GE": 88, "GH": 91, "GR": 101, "GT": 103, "HK": 108, "HN": 107,
	"HR": 109, "HU": 111, "ID": 112, "IE": 115, "IL": 117, "IN": 113,
	"IQ": 116, "IR": 114, "IS": 118, "IT": 119, "JM": 123, "JO": 124,
	"JP": 125, "KE": 128, "KG": 131, "KH": 129, "KP": 135, "KR": 136,
	"KW": 138, "KZ": 139, "LA": 140, "LB": 141, "LK": 158, "LT": 148,
	"LU": 149, "LV": 150, "LY": 151, "MA": 154, "MC": 157, "MD": 156,
	"ME": 159, "MG": 161, "MK": 153, "MM": 175, "MN": 167, "MO": 168,
	"MT": 178, "MU": 179, "MV": 181, "MX": 162, "MY": 180, "MZ": 184,
	"NA": 185, "NG": 195, "NI": 193, "NL": 160, "NO": 197, "NP": 186,
	"NZ": 196, "OM": 198, "PA": 200, "PE": 204, "PG": 202, "PH": 205,
	"PK": 201, "PL": 206, "PT": 209, "PY": 203, "QA": 210, "RO": 212,
	"RS": 214, "RU": 213, "SA": 218, "SE": 221, "SG": 223,
	"SI": 216, "SK": 215, "SN": 219, "SY": 228, "TH": 236, "TN": 238,
	"TR": 240, "TW": 235, "TZ": 241, "UA": 243, "UG": 226,
	"US": 225, "UY": 246, "UZ": 247, "VE": 248, "VN": 251,
	"ZA": 252, "ZW": 253,
}

// CountryCode resolves an ISO-2 country code to osu!'s numeric id, falling
// back to 0 ("XX", unknown) for anything not in the table.
func CountryCode(iso2 string) uint8 {
	code, ok := countryNumeric[strings.ToUpper(iso2)]
	if !ok {
		return 0
	}
	return code
}
