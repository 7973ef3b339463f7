package model

// information is keyed by label and never mutated after init.
var information = map[string]Information{
	"glioma": {
		Description: "Glioma adalah tumor otak yang berasal dari sel glial, yaitu sel yang berfungsi sebagai penunjang sel saraf di otak dan sumsum tulang belakang. Tumor ini dapat muncul di berbagai bagian otak dan memiliki spektrum keganasan, mulai dari yang bersifat jinak (low-grade) hingga sangat agresif (high-grade). Glioma sering menyebabkan gejala seperti sakit kepala, kejang, gangguan penglihatan, kelemahan tubuh, atau perubahan kognitif, tergantung pada lokasi dan ukuran tumor. Karena sifatnya yang invasif dan bisa menyebar ke jaringan otak sekitarnya, deteksi dini serta penanganan yang tepat sangat penting untuk memperlambat progresi penyakit dan meningkatkan prognosis pasien.",
	},
	"meningioma": {
		Description: "Meningioma adalah tumor otak yang umumnya bersifat jinak dan tumbuh secara perlahan dari meninges, yaitu membran pelindung yang melapisi otak dan sumsum tulang belakang. Meskipun jarang bersifat ganas, meningioma dapat menekan struktur otak di sekitarnya sehingga menimbulkan gejala seperti sakit kepala, gangguan penglihatan, kejang, atau perubahan perilaku. Tumor ini lebih sering ditemukan pada wanita dan individu lanjut usia, dan dalam banyak kasus ditemukan secara tidak sengaja saat pemeriksaan otak rutin. Ukuran, lokasi, dan gejala yang ditimbulkan menentukan apakah diperlukan tindakan medis seperti operasi atau pemantauan berkala.",
	},
	"notumor": {
		Description: "Tidak ditemukan adanya massa atau lesi abnormal dalam hasil pencitraan otak, yang menunjukkan tidak adanya tanda-tanda tumor intrakranial yang dapat dikenali. Struktur otak tampak normal tanpa adanya pembesaran, perubahan densitas jaringan, atau infiltrasi yang mencurigakan. Meski begitu, jika pasien tetap mengalami gejala neurologis seperti sakit kepala kronis, kejang, atau gangguan sensorik, pemeriksaan lanjutan seperti MRI lanjutan atau evaluasi neurologis mungkin diperlukan untuk menyingkirkan kemungkinan gangguan non-struktural atau fungsional.",
	},
	"pituitary": {
		Description: "Tumor pituitari adalah pertumbuhan abnormal pada kelenjar pituitari yang terletak di dasar otak dan memiliki peran penting dalam mengatur produksi berbagai hormon dalam tubuh. Sebagian besar tumor pituitari bersifat jinak (adenoma), namun dapat mengganggu keseimbangan hormonal tubuh, baik dengan meningkatkan produksi hormon tertentu (hipersekresi) maupun menekannya (hiposekresi). Gejala yang ditimbulkan bisa bervariasi, mulai dari gangguan penglihatan, sakit kepala, gangguan menstruasi, penurunan libido, hingga gangguan metabolisme, tergantung pada jenis dan ukuran tumor serta hormon yang terlibat.",
	},
}

// InformationFor returns the static description for label.
func InformationFor(label string) (Information, bool) {
	info, ok := information[label]
	return info, ok
}
