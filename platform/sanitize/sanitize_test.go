package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "  hola   mundo ", want: "hola mundo"},
		{in: "<p>Hola</p>&nbsp;<b>amigo</b>", want: "Hola amigo"},
		{in: "first_name:  Ana\n last_name: Ruiz ", want: "first_name: Ana\nlast_name: Ruiz"},
		{in: "&lt;script&gt;x&lt;/script&gt;", want: "x"},
	}
	for _, tc := range cases {
		if got := Text(tc.in); got != tc.want {
			t.Errorf("Text(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
