package generation

import "strings"

const scriptSystemPrompt = "You are an expert biography scriptwriter for YouTube documentaries. You write narration only."

const scriptPromptTemplate = `You are writing a 5-minute biography video for **{actor_name}**.

========================  GLOBAL STORY GUIDELINES  ========================
1.  WORD COUNT & PACE
   • 780–830 words (≈5 min @ 155 wpm).
2.  TENSE RULE
   • Action beats in historical-present ("he knocks," "she wins"); background may use past, but never mix tenses in one sentence.
3.  VOICE & TARGET DEMO
   • Confident sports-doc storyteller: punchy, nostalgic, dry-witty.
   • Era-flavored verbs and metaphors for 45- to 65-year-olds; no Gen-Z slang.
4.  DATES & AGES
   • Use 6–9 explicit year stamps total, spread out; max one date OR one age per sentence.
   • Reference the actor's age at least twice ("at 32," "now 47").
5.  SUSPENSE MOMENT
   • Around the 80–90 s mark, insert a naturally arising question that tees up tension; do not label it.
6.  CALLBACK ENGINE
   • Choose a single tangible motif. Mention it once early, then exactly 3 callbacks later, each stronger than the last.
7.  EMOTIONAL TRIP-WIRE
   • End with a 1- or 2-sentence legacy reflection that references the motif. No outros, CTAs, or brand names.
8.  LANGUAGE MUSIC
   • Vary sentence lengths: staccato punch, a medium beat, then an occasional lyrical line.
9.  OUTPUT SANITATION
   • Narration only. No visuals, tables, scene headings, timelines, sound cues, or formatting notes beyond the format below.

========================  OUTPUT MARKDOWN FORMAT  ========================

**{actor_name} — 5-MINUTE BIO SCRIPT (~XXX words)**

**HOOK**
Fragment. Fragment. Fragment. And [surprise facet].
{actor_name}'s [metaphor or superlative tied to a signature role]. **[Imperative callback, verb-first, 2–4 words], and let's get rollin'.**

**BIO**
(Continuous paragraphs from birth to present-day epilogue; follow all guidelines above.)

REMINDER CHECKLIST (self-verify before output)
☐ 780–830 words
☐ 6–9 year stamps, never more than one per sentence
☐ At least 2 age mentions
☐ Single motif with 3 callbacks
☐ Imperative callback flows into "…and let's get rollin'."
☐ Only spoken narration appears in final output`

const phoneticSystemPrompt = "You convert proper nouns to phonetic spellings for a voice-over narrator. You change nothing else."

const phoneticPromptTemplate = `You are converting a biography script for a 17-year-old narrator who is an excellent reader but lacks life experience with uncommon proper nouns (names, places, businesses, etc.).

TASK: Convert proper nouns that meet ALL these criteria:
1. A high school senior likely hasn't encountered it before
2. Sounding it out would NOT produce the correct pronunciation
3. It's a proper noun (person, place, business, group, etc.)

CONVERSION RULES:
- Replace ONLY the proper nouns that meet the above criteria with phonetic spelling
- Write phonetic versions as a 12-year-old would read them
- Use simple letter combinations, NO dashes or special characters
- Keep EVERYTHING else exactly the same (punctuation, formatting, structure)
- Common names like "Tom", "New York", "Hollywood" should NOT be changed

EXAMPLES:
- "Saoirse Ronan" → "Seersha Ronan"
- "Joaquin Phoenix" → "Wahkeen Phoenix"
- "Leicester" → "Lester"
- "Siobhan" → "Shivawn"

ORIGINAL SCRIPT:
{script}

OUTPUT: The exact same script with ONLY the necessary proper nouns converted to phonetic spelling. Do not add any explanations or notes.`

const storyboardSystemPrompt = "You are a senior storyboard and multimodal-prompt architect. You answer with a single JSON array."

const storyboardPromptTemplate = `TASK
From the SCRIPT below, create a shot list (≥ 45 shots) for a YouTube biography aimed at men 55–70.
• Shots 1-6 = HOOK stingers (2 s each).
• Remaining shots = BIO micro-shots (5 s each).
• Break whenever the idea, location, or era shifts.
• If the total is < 45, subdivide until you reach ≥ 45.
• Every word of the SCRIPT must appear verbatim in exactly one "script" field, with no overlap and no omissions.

FACE & LIKENESS RULE
• Most AI images should not show the actor. When the actor must appear as an adult, avoid a full, clearly recognizable face: use silhouettes, back-of-head, oblique angles, heavy rim-light, or foreground objects.
• When the actor is depicted under 18, an age label may guide style ("teenage ...").
• Do not use "portrait," "close-up," or front-facing facial terms for adult shots.

OUTPUT
Return one JSON array. Each element uses exactly these keys:

{
  "shot": <integer, sequential from 1>,
  "script": "<verbatim script chunk>",
  "image_search": "<5-8 keyword phrase>",
  "flux_prompt": "<≈35-word FLUX Pro 1.1 prompt ending with --raw --aspect 16:9 --negative 'text, watermark, logo, disfigured face'>",
  "ai_video_prompt": "<1-2 vivid sentences for a 5-second loop>",
  "youtube_search": "<5-10 keyword phrase>"
}

COLUMN GUIDELINES
• image_search: actor/era/context + medium (e.g. "Michael Landon javelin 1954 black-and-white photo").
• flux_prompt: camera move, lens/format, lighting and mood, color/film stock, composition hook; faces obscured for adults.
• ai_video_prompt: motion path, atmosphere, overlays, optional sound cue.
• youtube_search: actor/title/year + scene or B-roll descriptor.
• Output no headings, commentary, or extra keys, just the pure JSON array.

SCRIPT TO PROCESS:
{script}`

const musicSystemPrompt = "You are an elite AI music supervisor for biography videos. You answer with a single JSON array."

const musicPromptTemplate = `TASK
1. READ the full SCRIPT below.
2. REASON about the subject's peak decades, signature works, persona, dominant moods and pacing.
3. DESIGN exactly three DISTINCT Suno "Custom-mode" instrumental prompts that:
   • feel upbeat under narration (≈100-120 BPM unless the script demands otherwise);
   • are 100% instrumental;
   • use structural tags [Intro] [Verse] [Chorus] [Bridge] [Outro], total ≤120 s, loop-friendly, open midrange for voice-over;
   • include a track title, BPM, key and genre label, written once at the start.
   Prompt 1: strong rock influence from the decade that fits the actor's peak era.
   Prompt 2: moderate rock influence from whichever decade suits the actor.
   Prompt 3: any other style that serves the script best.

OUTPUT FORMAT
Return one JSON array and nothing else. Each of the three objects has exactly one key, "suno_prompt", whose value is a single-line string:

{"suno_prompt": "<Track Title> | <BPM> BPM | <Key> | <Genre Label> | [Intro] … [Outro]"}

• Separate the four header items with "|".
• Write keys in full words ("E minor", never "E-min").
• Keep everything on one line, no newline characters.

SCRIPT TO PROCESS:
{script}`

func renderScriptPrompt(actor string) string {
	return strings.ReplaceAll(scriptPromptTemplate, "{actor_name}", actor)
}

func renderWithScript(template, script string) string {
	return strings.Replace(template, "{script}", script, 1)
}
