package pipeline

import (
	"fmt"
	"strings"

	"campaignforge/internal/domain"
)

const strategistSystemPrompt = "You are a senior brand strategist. You plan paid social campaigns for small and medium businesses. Reply with a single JSON object and nothing else."

const creativeSystemPrompt = "You are a creative director who turns campaign briefs into production-ready prompts for image and video generation models. Reply with a single JSON object and nothing else."

const briefSchema = `{"objective":string,"targetAudience":string,"funnelStage":"awareness"|"consideration"|"conversion","keyMessage":string,"valueProposition":string,"emotionalHook":string,"primaryChannel":string,"visualStyle":string,"callToAction":string,"campaignConcept":string}`

const creativeSchema = `{"title":string,"imagePrompt":string,"scenes":[{"beat":"hook"|"problem"|"value"|"proof"|"cta","description":string,"visualDirection":string,"cameraStyle":string,"lighting":string,"emotionalTone":string}]}`

func buildStrategistPrompt(in domain.JobInput) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Write a campaign brief for the brand %q. Respond strictly with JSON matching this schema: %s.", in.BrandName, briefSchema)
	if in.CampaignID != "" {
		fmt.Fprintf(sb, "\nCampaign reference: %s.", in.CampaignID)
	}
	writeContext(sb, "Brand context", in.BrandContext)
	writeContext(sb, "Keyword research", in.KeywordContext)
	writeContext(sb, "Strategy notes", in.StrategyContext)
	sb.WriteString("\nKeep every field to one or two sentences. The call to action must be a short imperative phrase.")
	return sb.String()
}

func buildCreativePrompt(brand string, brief domain.CampaignBrief) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Turn this brief for %q into one image-generation prompt and a five-scene video plan. Respond strictly with JSON matching this schema: %s.", brand, creativeSchema)
	sb.WriteString("\nThe scenes must appear in this order: hook, problem, value, proof, cta.")
	fmt.Fprintf(sb, "\nObjective: %s", brief.Objective)
	fmt.Fprintf(sb, "\nTarget audience: %s", brief.TargetAudience)
	fmt.Fprintf(sb, "\nKey message: %s", brief.KeyMessage)
	fmt.Fprintf(sb, "\nValue proposition: %s", brief.ValueProposition)
	fmt.Fprintf(sb, "\nEmotional hook: %s", brief.EmotionalHook)
	fmt.Fprintf(sb, "\nVisual style: %s", brief.VisualStyle)
	fmt.Fprintf(sb, "\nCall to action: %s", brief.CallToAction)
	fmt.Fprintf(sb, "\nCampaign concept: %s", brief.CampaignConcept)
	return sb.String()
}

func buildVariantPrompt(base string, brief *domain.CampaignBrief, v imageVariant) string {
	sb := &strings.Builder{}
	sb.WriteString(strings.TrimSpace(base))
	fmt.Fprintf(sb, "\nFormat: %s %s advertisement, composition suited to %s.", v.Platform, v.VisualType, v.Size)
	switch v.Type {
	case domain.AdImageBanner:
		sb.WriteString(" Wide layout with generous negative space on one side for headline copy.")
	case domain.AdImageProductFocus:
		sb.WriteString(" Tight hero shot of the product, clean background, catalog lighting.")
	default:
		sb.WriteString(" Scroll-stopping square composition with one clear focal point.")
	}
	if brief != nil && brief.VisualStyle != "" {
		fmt.Fprintf(sb, "\nVisual style: %s.", brief.VisualStyle)
	}
	sb.WriteString("\nDo not render any text, logos or watermarks.")
	return sb.String()
}

func buildVideoPrompt(creative domain.CreativePrompts, brief *domain.CampaignBrief) string {
	sb := &strings.Builder{}
	title := strings.TrimSpace(creative.Title)
	if title == "" {
		title = "Promotional spot"
	}
	fmt.Fprintf(sb, "%s. A short widescreen %s commercial in %d continuous scenes.", title, videoAspectRatio, len(creative.Scenes))
	if brief != nil && brief.VisualStyle != "" {
		fmt.Fprintf(sb, " Overall look: %s.", brief.VisualStyle)
	}
	for i, scene := range creative.Scenes {
		fmt.Fprintf(sb, "\nScene %d (%s): %s", i+1, scene.Beat, strings.TrimSpace(scene.Description))
		if scene.VisualDirection != "" {
			fmt.Fprintf(sb, " Visuals: %s.", scene.VisualDirection)
		}
		if scene.CameraStyle != "" {
			fmt.Fprintf(sb, " Camera: %s.", scene.CameraStyle)
		}
		if scene.Lighting != "" {
			fmt.Fprintf(sb, " Lighting: %s.", scene.Lighting)
		}
		if scene.EmotionalTone != "" {
			fmt.Fprintf(sb, " Mood: %s.", scene.EmotionalTone)
		}
	}
	sb.WriteString("\nNo on-screen text or subtitles.")
	return sb.String()
}

func writeContext(sb *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n%s", label, value)
}
