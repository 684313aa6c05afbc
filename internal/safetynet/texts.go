package safetynet

import (
	"fmt"
	"strings"

	"leadfunnel_backend/internal/leadstate"
)

// BookingLinkPlaceholder is replaced by the resolved booking URL before sending.
const BookingLinkPlaceholder = "{BOOKING_LINK}"

const (
	TagNeedsHuman     = "Necesita Humano"
	TagAdminTopic     = "Tema Administrativo"
	TagPendingBooking = "Lead con cita pendiente"
	TagSalesProcess   = "Proceso de Ventas"
	TagNotSales       = "No es Ventas"
	TagNotProspect    = "No Prospecto"
	TagWebsite        = "Sitio Web"
	TagTransferred    = "Transferido"
)

const (
	TextHandoff        = "Un asesor especializado atenderá tus dudas mejor. ¡Pronto te contactarán! 🐻"
	TextPostBooking    = "Un asesor te contactará pronto para cualquier duda adicional. ¡Nos vemos pronto! 🐻"
	TextSafeFallback   = "¡Gracias por tu interés! ¿Podrías repetirme tu consulta para ayudarte mejor? 🐻"
	TextTransferNotice = "Estás siendo transferido a otro plantel, un asesor de ese plantel te contactará 🐻"
)

// handoffPhrases mark a system reply that handed the contact to a human.
var handoffPhrases = []string{
	"Un asesor especializado atenderá",
	"Para dudas sobre trámites escolares",
	"Para que un asesor experto te ayude mejor, agenda tu cita",
	"¡Pronto te contactarán!",
	"para ayudarte mejor te conecto con un asesor experto",
	"un asesor especializado se pondrá en contacto",
	"Un asesor te contactará pronto para cualquier duda adicional",
	"Este canal es exclusivo para nuevos alumnos y admisiones",
}

// IsHandoffText reports whether a system reply handed the contact off.
func IsHandoffText(text string) bool {
	for _, p := range handoffPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// AdminText is the redirection sent for administrative topics.
func AdminText(keyword string) string {
	return fmt.Sprintf("¡Hola! Veo que tu consulta es sobre un trámite académico/administrativo (%s). "+
		"Este canal es exclusivo para nuevos alumnos y admisiones. "+
		"Para trámites de alumnos actuales, por favor contacta a tu plantel directamente. ¡Éxito! 📚", keyword)
}

// AdvisorLinkText hands the contact to an advisor with a booking link.
func AdvisorLinkText(name string) string {
	return fmt.Sprintf("¡Gracias %s por tu interés! 🐻 Para que un asesor experto te ayude mejor, agenda tu cita aquí: %s",
		nameOr(name), BookingLinkPlaceholder)
}

// CompleteDataText closes the capture when all contact data arrived at once.
func CompleteDataText(name string) string {
	return fmt.Sprintf("¡Excelente %s! 🐻 Ya tengo todos tus datos. Un asesor te dará toda la información personalizada en tu cita, agenda aquí: %s",
		nameOr(name), BookingLinkPlaceholder)
}

// MissedLinkText replaces a reply that forgot the booking link for a complete lead.
func MissedLinkText(name string) string {
	return fmt.Sprintf("¡Gracias %s! 🐻 Para que formes parte de la comunidad Grizzlies de Colegio San Ángel, agenda tu cita con un asesor aquí: %s",
		nameOr(name), BookingLinkPlaceholder)
}

// PartialDataLinkText offers a booking link when the model repeats itself.
func PartialDataLinkText() string {
	return "Entiendo, para brindarte una mejor atención, un asesor experto te ayudará personalmente. Agenda tu cita aquí: " +
		BookingLinkPlaceholder + " 🐻"
}

// NextFieldQuestion asks for the first field missing from the state.
func NextFieldQuestion(f leadstate.Field, campusNames []string) string {
	switch f {
	case leadstate.FieldCampus:
		return "¿En cuál de nuestros planteles te gustaría inscribir a tu hijo/a? Tenemos " + joinSpanish(campusNames) + "."
	case leadstate.FieldProgram:
		return "¡Excelente! ¿Podrías confirmarme qué nivel educativo te interesa para tu hijo/a?"
	case leadstate.FieldName:
		return "Para darte una atención personalizada, ¿me compartes tu nombre completo? 🐻"
	case leadstate.FieldPhone:
		return "¿Me compartes un número de teléfono a 10 dígitos para que un asesor pueda contactarte?"
	case leadstate.FieldEmail:
		return "Por último, ¿me compartes tu correo electrónico? 🐻"
	default:
		return CompleteDataText("")
	}
}

func nameOr(name string) string {
	if first := strings.Fields(name); len(first) > 0 {
		return first[0]
	}
	return "amigo/a"
}

func joinSpanish(items []string) string {
	switch len(items) {
	case 0:
		return "varios planteles"
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " y " + items[len(items)-1]
	}
}
