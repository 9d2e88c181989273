package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	testCases := []struct {
		input string
		want  string
	}{
		{input: "Siyah", want: "SIYAH"},
		{input: "siyah", want: "SIYAH"},
		{input: "SİYAH", want: "SIYAH"},
		{input: "Ayakkabı", want: "AYAKKABI"},
		{input: "Gümüş", want: "GUMUS"},
		{input: "  çizme ", want: "CIZME"},
		{input: "Hispanitas", want: "HISPANITAS"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.want, Fold(tc.input))
		})
	}
}

func TestExtractColor(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		wantColor string
		wantFound bool
	}{
		{
			name:      "single trailing color",
			input:     "MN002 - CST Loafer Pelle Erkek Ayakkabı SIYAH",
			wantColor: "SIYAH",
			wantFound: true,
		},
		{
			name:      "two trailing colors",
			input:     "Sneaker LACIVERT KREM",
			wantColor: "LACIVERT KREM",
			wantFound: true,
		},
		{
			name:      "at most two tokens",
			input:     "Sneaker SIYAH BEYAZ KREM",
			wantColor: "BEYAZ KREM",
			wantFound: true,
		},
		{
			name:      "composite token",
			input:     "Sneaker SIYAH-BEYAZ",
			wantColor: "SIYAH-BEYAZ",
			wantFound: true,
		},
		{
			name:      "color not at tail is ignored",
			input:     "SIYAH Loafer Pelle",
			wantFound: false,
		},
		{
			name:      "no color",
			input:     "Loafer Pelle",
			wantFound: false,
		},
		{
			name:      "empty name",
			input:     "",
			wantFound: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			color, found := ExtractColor(tc.input)
			assert.Equal(t, tc.wantFound, found)
			assert.Equal(t, tc.wantColor, color)
		})
	}
}

func TestExtractFinish(t *testing.T) {
	testCases := []struct {
		name        string
		productName string
		description string
		want        string
		wantFound   bool
	}{
		{
			name:        "finish in name",
			productName: "Rugan Stiletto SIYAH",
			want:        "RUGAN",
			wantFound:   true,
		},
		{
			name:        "finish in html description",
			productName: "Stiletto SIYAH",
			description: "<p>Süet deri, <b>rahat</b> taban</p>",
			want:        "SUET",
			wantFound:   true,
		},
		{
			name:        "name wins over description",
			productName: "Mat Loafer",
			description: "<p>Rugan</p>",
			want:        "MAT",
			wantFound:   true,
		},
		{
			name:        "partial words do not match",
			productName: "Material Loafer",
			description: "Saten-like",
			want:        "SATEN",
			wantFound:   true,
		},
		{
			name:        "no finish",
			productName: "Loafer Pelle",
			description: "<p>Deri</p>",
			wantFound:   false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			finish, found := ExtractFinish(tc.productName, tc.description)
			assert.Equal(t, tc.wantFound, found)
			assert.Equal(t, tc.want, finish)
		})
	}
}

func TestExtractModelCode(t *testing.T) {
	testCases := []struct {
		name        string
		productName string
		mpn         string
		productCode string
		want        string
		wantFound   bool
	}{
		{
			name:        "leading code in name",
			productName: "mn002 - CST Loafer",
			mpn:         "X-1",
			want:        "MN002",
			wantFound:   true,
		},
		{
			name:        "falls back to mpn",
			productName: "Loafer Pelle",
			mpn:         " ab-77 ",
			productCode: "PC1",
			want:        "AB-77",
			wantFound:   true,
		},
		{
			name:        "falls back to product code",
			productName: "Loafer Pelle",
			productCode: "pc1",
			want:        "PC1",
			wantFound:   true,
		},
		{
			name:        "too many digits in name",
			productName: "MN123456 Loafer",
			wantFound:   false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, found := ExtractModelCode(tc.productName, tc.mpn, tc.productCode)
			assert.Equal(t, tc.wantFound, found)
			assert.Equal(t, tc.want, code)
		})
	}
}

func TestExtractSeries(t *testing.T) {
	series, found := ExtractSeries("MN002 - CST Loafer Pelle")
	assert.True(t, found)
	assert.Equal(t, "CST", series)

	_, found = ExtractSeries("MN002 - Loafer Pelle")
	assert.False(t, found, "a word after the dash is not a series")

	_, found = ExtractSeries("Loafer Pelle")
	assert.False(t, found)
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name      string
		texts     []string
		want      string
		wantFound bool
	}{
		{name: "boot", texts: []string{"Erkek Deri Bot"}, want: "Bot", wantFound: true},
		{name: "folded boot keyword", texts: []string{"Kadın Çizme"}, want: "Bot", wantFound: true},
		{name: "athletic beats formal", texts: []string{"Loafer", "Spor"}, want: "Spor Ayakkabı", wantFound: true},
		{name: "boot beats athletic", texts: []string{"Sneaker Bot"}, want: "Bot", wantFound: true},
		{name: "formal", texts: []string{"Klasik Erkek"}, want: "Klasik Ayakkabı", wantFound: true},
		{name: "category fields count", texts: []string{"Pelle", "Ayakkabı > Oxford"}, want: "Klasik Ayakkabı", wantFound: true},
		{name: "no keyword", texts: []string{"Pelle Erkek"}, wantFound: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := Classify(tc.texts...)
			assert.Equal(t, tc.wantFound, found)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildTitle(t *testing.T) {
	testCases := []struct {
		name        string
		productName string
		brand       string
		code        string
		want        string
	}{
		{
			name:        "code series and color stripped",
			productName: "MN002 - CST Loafer Pelle Erkek Ayakkabı SIYAH",
			brand:       "ACME",
			code:        "MN002",
			want:        "Loafer Pelle Erkek Ayakkabı – CST ACME MN002",
		},
		{
			name:        "default series and upper-cased brand",
			productName: "Loafer  Pelle   BEYAZ",
			brand:       "acme",
			code:        "AB123",
			want:        "Loafer Pelle – STD ACME AB123",
		},
		{
			name:        "code taken from name when missing",
			productName: "XY900 - LUX Oxford KAHVE",
			brand:       "Acme",
			code:        "",
			want:        "Oxford – LUX ACME XY900",
		},
		{
			name:        "bare leading code removed",
			productName: "AB123 Derby Erkek",
			brand:       "ACME",
			code:        "AB123",
			want:        "Derby Erkek – STD ACME AB123",
		},
		{
			name:        "latin brand keeps dotless capitals",
			productName: "AB123 - CST Loafer SIYAH",
			brand:       "Hispanitas",
			code:        "AB123",
			want:        "Loafer – CST HISPANITAS AB123",
		},
		{
			name:        "empty brand collapses",
			productName: "Derby",
			brand:       "",
			code:        "AB123",
			want:        "Derby – STD AB123",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildTitle(tc.productName, tc.brand, tc.code))
		})
	}
}

func TestUpper(t *testing.T) {
	assert.Equal(t, "HISPANITAS", Upper(" Hispanitas "))
	assert.Equal(t, "WHITE", Upper("White"))
	assert.Equal(t, "KIRMIZI", Upper("kırmızı"))
	assert.Equal(t, "SİYAH", Upper("SİYAH"))
}

func TestImageSignature(t *testing.T) {
	assert.Equal(t, "cdn.example.com/a.jpg", ImageSignature("HTTPS://Cdn.Example.com/A.jpg"))
	assert.Equal(t, "cdn.example.com/a.jpg", ImageSignature("http://cdn.example.com/a.jpg"))
	assert.Equal(t, "cdn.example.com/a.jpg", ImageSignature(" //cdn.example.com/a.jpg "))
}
