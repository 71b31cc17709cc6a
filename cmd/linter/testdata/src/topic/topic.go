package topic

func StateTopic(host string) string {
	return "spBv1.0/STATE/" + host
}
