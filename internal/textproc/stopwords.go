package textproc

// indonesianStopwords is a function-word list for Indonesian. Negations
// (tidak, bukan, kurang) and evaluative words are deliberately absent.
var indonesianStopwords = []string{
	"ada", "adalah", "agak", "agar", "akan", "aku", "amat", "anda", "antara",
	"apa", "apakah", "atau", "bagi", "bahwa", "begitu", "belum", "bisa",
	"boleh", "dahulu", "dalam", "dan", "dapat", "dari", "daripada", "demi",
	"demikian", "dengan", "di", "dia", "dll", "dsb", "dst", "hal", "hanya",
	"harus", "ia", "ini", "itu", "itulah", "jadi", "jika", "juga", "kalau",
	"kami", "kamu", "karena", "ke", "kemana", "kembali", "kepada", "ketika",
	"kita", "lagi", "lain", "maka", "mari", "masih", "melainkan", "mereka",
	"namun", "nanti", "oleh", "pada", "para", "pula", "pun", "saat", "saja",
	"sambil", "sampai", "sangat", "saya", "sebab", "sebagai", "sebelum",
	"sedang", "sedangkan", "sehingga", "sekitar", "selagi", "selain",
	"sementara", "seperti", "serta", "sesudah", "setelah", "setiap",
	"sudah", "supaya", "tanpa", "tapi", "telah", "tentang", "terhadap",
	"tetapi", "toh", "untuk", "walau", "yaitu", "yakni", "yang",
}

// customStopwords are conversational fillers common in comment sections.
var customStopwords = []string{
	"nya", "nih", "sih", "dong", "deh", "lah", "yg", "dgn", "utk",
	"min", "kak", "bang", "bro", "sis", "gan", "guys", "kuy",
}
